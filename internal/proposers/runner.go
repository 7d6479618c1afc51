package proposers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
	"github.com/flowforge-ai/autopilot/internal/governance"
	"github.com/flowforge-ai/autopilot/internal/metrics"
)

// throttleModuleAI is the umbrella module the cost guard throttles on spend
// spikes; a throttle on it suppresses every AI-driven proposer.
const throttleModuleAI = "ai"

// Runner drives one or more proposers through the governance policy.
type Runner struct {
	proposers []Proposer
	governor  *governance.Governor
	gate      *config.Gate
	events    audit.EventWriter
	usage     *metrics.Counters // nil disables usage accounting
	throttles Throttles         // nil disables throttle enforcement
	logger    *zap.Logger
}

// NewRunner wires a runner over the given proposers. usage and throttles are
// optional collaborators; pass nil to run without them.
func NewRunner(proposers []Proposer, governor *governance.Governor, gate *config.Gate, events audit.EventWriter, usage *metrics.Counters, throttles Throttles, logger *zap.Logger) *Runner {
	return &Runner{
		proposers: proposers,
		governor:  governor,
		gate:      gate,
		events:    events,
		usage:     usage,
		throttles: throttles,
		logger:    logger,
	}
}

// RunCycle runs every proposer once and disposes of each proposal per the
// governance policy. A failing proposer is logged and skipped; the cycle
// never aborts early. Throttled proposers sit the cycle out entirely; their
// Propose is not even called, so no tokens are spent while suppressed.
func (r *Runner) RunCycle(ctx context.Context) {
	for _, p := range r.proposers {
		if r.suppressed(p.Name()) {
			r.logger.Info("proposer throttled, skipping cycle",
				zap.String("proposer", p.Name()),
			)
			continue
		}

		proposals, err := p.Propose(ctx)
		if err != nil {
			r.logger.Warn("proposer cycle failed, skipping",
				zap.String("proposer", p.Name()),
				zap.Error(err),
			)
			continue
		}
		for _, prop := range proposals {
			if r.usage != nil && prop.TokensUsed > 0 {
				r.usage.TokensUsed.Add(prop.TokensUsed)
			}
			r.dispose(ctx, p.Name(), prop)
		}
	}
}

func (r *Runner) suppressed(module string) bool {
	if r.throttles == nil {
		return false
	}
	return r.throttles.IsThrottled(throttleModuleAI) || r.throttles.IsThrottled(module)
}

func (r *Runner) dispose(ctx context.Context, proposerName string, prop *Proposal) {
	disposition := governance.Decide(r.gate, prop.ImpactLevel)

	switch disposition {
	case governance.DispositionHold:
		if _, err := r.governor.Enqueue(ctx, governance.EnqueueParams{
			ActionType:  prop.ActionType,
			Payload:     prop.Payload,
			Reason:      prop.Reason,
			ImpactLevel: prop.ImpactLevel,
			TenantID:    prop.TenantID,
			OwnerID:     prop.OwnerID,
		}); err != nil {
			r.logger.Error("failed to enqueue held proposal",
				zap.String("proposer", proposerName),
				zap.String("action_type", prop.ActionType),
				zap.Error(err),
			)
		}

	case governance.DispositionExecute:
		if prop.Execute != nil {
			if err := prop.Execute(ctx); err != nil {
				r.logger.Error("proposal execution failed",
					zap.String("proposer", proposerName),
					zap.String("action_type", prop.ActionType),
					zap.Error(err),
				)
				return
			}
		}
		if r.usage != nil {
			r.usage.Transactions.Inc()
		}
		// Fire-and-forget audit record; execution already happened.
		if _, err := r.governor.Enqueue(ctx, governance.EnqueueParams{
			ActionType:  prop.ActionType,
			Payload:     prop.Payload,
			Reason:      prop.Reason + " (executed, audit record)",
			ImpactLevel: prop.ImpactLevel,
			TenantID:    prop.TenantID,
			OwnerID:     prop.OwnerID,
		}); err != nil {
			r.logger.Warn("audit enqueue failed after execution",
				zap.String("proposer", proposerName),
				zap.Error(err),
			)
		}

	case governance.DispositionSimulate:
		r.logger.Info("dry run",
			zap.String("proposer", proposerName),
			zap.String("action_type", prop.ActionType),
			zap.String("impact_level", string(prop.ImpactLevel)),
			zap.String("reason", prop.Reason),
		)
		r.events.Write(&audit.GovernanceEvent{
			EventID:     uuid.New().String(),
			EventType:   audit.EventDryRun,
			Timestamp:   time.Now().UTC(),
			TenantID:    prop.TenantID,
			ActorID:     proposerName,
			ActionType:  prop.ActionType,
			ImpactLevel: string(prop.ImpactLevel),
			Stage:       string(r.gate.Stage()),
			DryRun:      true,
			Reason:      prop.Reason,
			Source:      "proposer",
		})
	}
}
