// Package proposers defines the contract for the autonomous growth engines.
// Proposers never execute side effects directly: every cycle each proposal is
// routed through the governance policy and either executed (with an audit
// record), held for approval, or simulated as a dry run.
package proposers

import (
	"context"
	"encoding/json"

	"github.com/flowforge-ai/autopilot/internal/governance"
)

// Proposal is one action a proposer wants to take.
type Proposal struct {
	ActionType  string
	Payload     json.RawMessage
	Reason      string
	ImpactLevel governance.ImpactLevel
	TenantID    string
	OwnerID     string

	// TokensUsed is the LLM token spend incurred producing this proposal.
	// Recorded against the usage counters whatever the disposition; the
	// tokens are already consumed by the time the proposal exists.
	TokensUsed float64

	// Execute applies the proposal's external effect. Called only when the
	// governance policy permits immediate execution; nil means the proposal
	// is record-only.
	Execute func(ctx context.Context) error
}

// Throttles reports whether a module is currently suppressed. Satisfied by
// the cost guard's throttle state.
type Throttles interface {
	IsThrottled(module string) bool
}

// Proposer is implemented by each autonomous engine.
type Proposer interface {
	// Name identifies the engine in logs and audit records.
	Name() string

	// Propose returns the engine's proposals for this cycle. An empty slice
	// means nothing to do.
	Propose(ctx context.Context) ([]*Proposal, error)
}
