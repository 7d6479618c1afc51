package costguard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
	"github.com/flowforge-ai/autopilot/internal/governance"
)

// throttleTTL is the fixed lifetime of a throttle entry. Re-throttling the
// same module replaces the entry rather than stacking.
const throttleTTL = time.Hour

// Source provides the current usage counter readings. Implementations talk
// to the metrics collaborator; a failed read degrades the cycle, it does not
// crash it.
type Source interface {
	Collect(ctx context.Context) (Usage, error)
}

// StateStore persists the guard's process-wide state: the sample window, the
// active alert set and the throttle record. Implementations must write
// atomically so a crash mid-write never leaves partial state.
type StateStore interface {
	AppendSample(ctx context.Context, s Sample) error
	LoadSamples(ctx context.Context, limit int) ([]Sample, error)
	SaveAlert(ctx context.Context, a *Alert) error
	LoadActiveAlerts(ctx context.Context) ([]*Alert, error)
	SaveThrottleState(ctx context.Context, ts ThrottleState) error
	LoadThrottleState(ctx context.Context) (*ThrottleState, error)
}

// ThrottleEntry is one currently throttled module.
type ThrottleEntry struct {
	Module    string    `json:"module"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ThrottleState is the process-wide record of throttled modules and the
// low-cost-mode flag.
type ThrottleState struct {
	Entries     []ThrottleEntry `json:"throttled_modules"`
	LowCostMode bool            `json:"low_cost_mode"`
}

// Guard owns the cost-control state machine. All mutable state is held on
// the instance and guarded by one mutex so tests can construct isolated
// guards; nothing is package-global.
type Guard struct {
	source   Source
	detector *Detector
	window   *Window
	state    StateStore
	governor *governance.Governor
	gate     *config.Gate
	events   audit.EventWriter
	logger   *zap.Logger

	tenantID      string
	monthlyBudget float64

	mu          sync.Mutex
	active      map[string]*Alert
	throttled   map[string]ThrottleEntry
	lowCostMode bool
}

// Options configures a Guard.
type Options struct {
	Source        Source
	Rules         []Rule
	State         StateStore
	Governor      *governance.Governor
	Gate          *config.Gate
	Events        audit.EventWriter
	Logger        *zap.Logger
	TenantID      string  // tenant the guard's cost actions are filed under
	MonthlyBudget float64 // USD; 0 disables budget percent reporting
}

// NewGuard creates a cost guard. Call Restore before the first cycle to
// reload persisted window and alert state.
func NewGuard(opts Options) *Guard {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules
	}
	return &Guard{
		source:        opts.Source,
		detector:      NewDetector(rules),
		window:        NewWindow(WindowCap),
		state:         opts.State,
		governor:      opts.Governor,
		gate:          opts.Gate,
		events:        opts.Events,
		logger:        opts.Logger,
		tenantID:      opts.TenantID,
		monthlyBudget: opts.MonthlyBudget,
		active:        make(map[string]*Alert),
		throttled:     make(map[string]ThrottleEntry),
	}
}

// Restore reloads persisted window, alert and throttle state.
// A failed load logs and starts empty; it never blocks startup.
func (g *Guard) Restore(ctx context.Context) {
	if samples, err := g.state.LoadSamples(ctx, WindowCap); err != nil {
		g.logger.Warn("cost window restore failed, starting empty", zap.Error(err))
	} else {
		g.window.Restore(samples)
	}

	alerts, err := g.state.LoadActiveAlerts(ctx)
	if err != nil {
		g.logger.Warn("alert set restore failed, starting empty", zap.Error(err))
	}

	ts, err := g.state.LoadThrottleState(ctx)
	if err != nil {
		g.logger.Warn("throttle state restore failed, starting empty", zap.Error(err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range alerts {
		g.active[a.Metric] = a
	}
	if ts != nil {
		g.lowCostMode = ts.LowCostMode
		for _, e := range ts.Entries {
			g.throttled[e.Module] = e
		}
	}
}

// CollectSample reads the metrics source, derives cost estimates, appends to
// the rolling window and persists the sample.
func (g *Guard) CollectSample(ctx context.Context) (*Sample, error) {
	usage, err := g.source.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("CollectSample: %w: %v", governance.ErrUpstream, err)
	}

	daily, monthly := deriveCosts(usage)
	sample := Sample{
		Timestamp:    time.Now().UTC(),
		TokensUsed:   usage.TokensUsed,
		Requests:     usage.Requests,
		ComputePct:   usage.ComputePct,
		MemoryPct:    usage.MemoryPct,
		Transactions: usage.Transactions,
		DailyCost:    daily,
		MonthlyCost:  monthly,
	}

	g.window.Append(sample)

	if err := g.state.AppendSample(ctx, sample); err != nil {
		// The in-memory window already has the sample; a missed persist is
		// recoverable on the next cycle.
		g.logger.Warn("sample persist failed", zap.Error(err))
	}

	return &sample, nil
}

// DetectAndReact evaluates the rule table against a sample, raises and
// resolves alerts, and performs each raised alert's bound reaction.
// Approval-gated rules enqueue an impact-C action and never self-execute.
func (g *Guard) DetectAndReact(ctx context.Context, sample *Sample) []*Alert {
	now := time.Now().UTC()

	g.mu.Lock()
	ev := g.detector.Evaluate(sample, g.active, now)
	g.mu.Unlock()

	for _, alert := range ev.Resolved {
		g.logger.Info("spike alert resolved",
			zap.String("metric", alert.Metric),
			zap.Float64("value", alert.CurrentValue),
			zap.Float64("threshold", alert.Threshold),
		)
		g.recordAlert(audit.EventAlertResolved, alert)
		g.persistAlert(ctx, alert)
	}

	for _, alert := range ev.Raised {
		g.logger.Warn("spike alert raised",
			zap.String("metric", alert.Metric),
			zap.String("severity", alert.Severity),
			zap.Float64("value", alert.CurrentValue),
			zap.Float64("threshold", alert.Threshold),
			zap.Float64("percent_over", alert.PercentOver),
		)
		g.recordAlert(audit.EventAlertRaised, alert)
		g.persistAlert(ctx, alert)
		g.react(ctx, alert)
	}

	return ev.Raised
}

// RunCycle is one scheduler tick: collect, then detect and react. Upstream
// failures are logged and the cycle is skipped; the next tick retries.
func (g *Guard) RunCycle(ctx context.Context) {
	sample, err := g.CollectSample(ctx)
	if err != nil {
		g.logger.Warn("cost sampling cycle skipped", zap.Error(err))
		return
	}
	g.DetectAndReact(ctx, sample)
}

// react applies a raised alert's bound reaction.
func (g *Guard) react(ctx context.Context, alert *Alert) {
	if alert.RequiresApproval {
		g.enqueueCostAction(ctx, alert)
		return
	}

	switch alert.AutoAction {
	case AutoThrottleAI:
		g.AutoThrottle(ctx, "ai", fmt.Sprintf("%s spike: %.1f over threshold %.1f",
			alert.Metric, alert.CurrentValue, alert.Threshold))
	case AutoLowCostMode:
		g.EnableLowCostMode(ctx)
	}
}

// enqueueCostAction files an impact-C cost-control action for human approval.
// A failed enqueue is loud: the alert stays active and the operator sees the
// error in the log, not a silently half-applied reaction.
func (g *Guard) enqueueCostAction(ctx context.Context, alert *Alert) {
	payload, _ := json.Marshal(map[string]any{
		"metric":       alert.Metric,
		"value":        alert.CurrentValue,
		"threshold":    alert.Threshold,
		"percent_over": alert.PercentOver,
		"proposed":     alert.AutoAction,
	})
	_, err := g.governor.Enqueue(ctx, governance.EnqueueParams{
		ActionType:  governance.TypeCostControl,
		Payload:     payload,
		Reason:      fmt.Sprintf("%s %s spike requires approval", alert.Severity, alert.Metric),
		ImpactLevel: governance.ImpactC,
		TenantID:    g.tenantID,
		OwnerID:     "costguard",
	})
	if err != nil {
		g.logger.Error("failed to enqueue cost-control action",
			zap.String("metric", alert.Metric),
			zap.Error(err),
		)
	}
}

// AutoThrottle upserts a throttle entry for a module with the fixed expiry.
// Idempotent: re-throttling replaces the entry rather than stacking.
func (g *Guard) AutoThrottle(ctx context.Context, module, reason string) {
	entry := ThrottleEntry{
		Module:    module,
		Reason:    reason,
		ExpiresAt: time.Now().UTC().Add(throttleTTL),
	}

	g.mu.Lock()
	g.throttled[module] = entry
	g.mu.Unlock()

	g.logger.Warn("module throttled",
		zap.String("module", module),
		zap.String("reason", reason),
		zap.Time("expires_at", entry.ExpiresAt),
	)
	g.events.Write(&audit.GovernanceEvent{
		EventID:   uuid.New().String(),
		EventType: audit.EventThrottleApplied,
		Timestamp: time.Now().UTC(),
		TenantID:  g.tenantID,
		Stage:     string(g.gate.Stage()),
		Reason:    reason,
		Source:    "costguard",
	})
	g.persistThrottle(ctx)
}

// IsThrottled reports whether a module is currently throttled. Expired
// entries are swept on read.
func (g *Guard) IsThrottled(module string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.throttled[module]
	if !ok {
		return false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(g.throttled, module)
		return false
	}
	return true
}

// EnableLowCostMode sets the one-way cost-emergency flag. There is no
// automatic clearing: a cost emergency must not silently self-heal.
func (g *Guard) EnableLowCostMode(ctx context.Context) {
	g.mu.Lock()
	already := g.lowCostMode
	g.lowCostMode = true
	g.mu.Unlock()

	if already {
		return
	}

	g.logger.Warn("low cost mode enabled")
	g.events.Write(&audit.GovernanceEvent{
		EventID:   uuid.New().String(),
		EventType: audit.EventLowCostMode,
		Timestamp: time.Now().UTC(),
		TenantID:  g.tenantID,
		Stage:     string(g.gate.Stage()),
		Reason:    "low cost mode enabled",
		Source:    "costguard",
	})
	g.persistThrottle(ctx)
}

// DisableLowCostMode clears the flag. Explicit operator action only.
func (g *Guard) DisableLowCostMode(ctx context.Context, operator string) {
	g.mu.Lock()
	g.lowCostMode = false
	g.mu.Unlock()

	g.logger.Info("low cost mode disabled", zap.String("operator", operator))
	g.persistThrottle(ctx)
}

// LowCostMode reports the current flag.
func (g *Guard) LowCostMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lowCostMode
}

// Throttles returns the current throttle state, sweeping expired entries.
func (g *Guard) Throttles() ThrottleState {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	ts := ThrottleState{LowCostMode: g.lowCostMode}
	for module, entry := range g.throttled {
		if now.After(entry.ExpiresAt) {
			delete(g.throttled, module)
			continue
		}
		ts.Entries = append(ts.Entries, entry)
	}
	sort.Slice(ts.Entries, func(i, j int) bool {
		return ts.Entries[i].Module < ts.Entries[j].Module
	})
	return ts
}

// ActiveAlerts returns the unresolved alerts, ordered by metric name.
func (g *Guard) ActiveAlerts() []*Alert {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Alert, 0, len(g.active))
	for _, a := range g.active {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// Summary builds the forecast document for the dashboard collaborator.
func (g *Guard) Summary() Summary {
	f := g.window.ForecastNextPeriod()

	s := Summary{Forecast: f, LowCostMode: g.LowCostMode()}
	if g.monthlyBudget > 0 {
		projected := f.PredictedCost * 30
		s.BudgetRemaining = g.monthlyBudget - projected
		s.BudgetPercentUsed = projected / g.monthlyBudget * 100
	}
	return s
}

func (g *Guard) persistAlert(ctx context.Context, a *Alert) {
	if err := g.state.SaveAlert(ctx, a); err != nil {
		g.logger.Warn("alert persist failed",
			zap.String("metric", a.Metric),
			zap.Error(err),
		)
	}
}

func (g *Guard) persistThrottle(ctx context.Context) {
	if err := g.state.SaveThrottleState(ctx, g.Throttles()); err != nil {
		g.logger.Warn("throttle state persist failed", zap.Error(err))
	}
}

func (g *Guard) recordAlert(eventType string, a *Alert) {
	g.events.Write(&audit.GovernanceEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		Timestamp:   time.Now().UTC(),
		TenantID:    g.tenantID,
		MetricName:  a.Metric,
		Severity:    a.Severity,
		MetricValue: a.CurrentValue,
		Threshold:   a.Threshold,
		Stage:       string(g.gate.Stage()),
		Source:      "costguard",
	})
}
