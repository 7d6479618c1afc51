package costguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
	"github.com/flowforge-ai/autopilot/internal/governance"
)

// fixedSource returns a constant usage reading, or an error.
type fixedSource struct {
	usage Usage
	err   error
}

func (s *fixedSource) Collect(context.Context) (Usage, error) {
	return s.usage, s.err
}

// memState is a minimal in-memory StateStore; the production one lives in
// internal/store.
type memState struct {
	mu       sync.Mutex
	samples  []Sample
	alerts   map[string]*Alert
	throttle *ThrottleState
}

func newMemState() *memState {
	return &memState{alerts: make(map[string]*Alert)}
}

func (m *memState) AppendSample(_ context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *memState) LoadSamples(_ context.Context, limit int) ([]Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.samples)
	if limit < n {
		n = limit
	}
	out := make([]Sample, n)
	copy(out, m.samples[len(m.samples)-n:])
	return out, nil
}

func (m *memState) SaveAlert(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *memState) LoadActiveAlerts(_ context.Context) ([]*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.ResolvedAt == nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memState) SaveThrottleState(_ context.Context, ts ThrottleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := ts
	m.throttle = &cp
	return nil
}

func (m *memState) LoadThrottleState(_ context.Context) (*ThrottleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.throttle == nil {
		return nil, nil
	}
	cp := *m.throttle
	return &cp, nil
}

// memActions is a minimal governance.ActionStore for wiring a test governor.
type memActions struct {
	mu      sync.Mutex
	actions []*governance.Action
}

func (m *memActions) Enqueue(_ context.Context, a *governance.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.actions = append(m.actions, &cp)
	return nil
}

func (m *memActions) ListPending(_ context.Context, tenantID string) ([]*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*governance.Action
	for _, a := range m.actions {
		if a.TenantID == tenantID && a.Status == governance.StatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memActions) ListByTypeStatus(_ context.Context, actionType string, status governance.Status) ([]*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*governance.Action
	for _, a := range m.actions {
		if a.ActionType == actionType && a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memActions) Get(_ context.Context, id string) (*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, governance.ErrNotFound
}

func (m *memActions) Resolve(_ context.Context, id string, res governance.Resolution) (*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a.ID != id {
			continue
		}
		if a.Status != governance.StatusPending {
			return nil, governance.ErrAlreadyResolved
		}
		now := time.Now().UTC()
		a.Status = res.Status
		a.ResolvedAt = &now
		a.ResolvedBy = res.ProcessedBy
		a.ResolutionReason = res.Reason
		cp := *a
		return &cp, nil
	}
	return nil, governance.ErrNotFound
}

func testGuard(t *testing.T, source Source, rules []Rule) (*Guard, *memActions, *memState) {
	t.Helper()
	actions := &memActions{}
	state := newMemState()
	gate := config.NewGateWithLookup(func(string) string { return "post" }, zap.NewNop())
	events := audit.NewLogWriter(zap.NewNop())
	governor := governance.NewGovernor(actions, gate, events, zap.NewNop())

	guard := NewGuard(Options{
		Source:        source,
		Rules:         rules,
		State:         state,
		Governor:      governor,
		Gate:          gate,
		Events:        events,
		Logger:        zap.NewNop(),
		TenantID:      "platform",
		MonthlyBudget: 2000,
	})
	return guard, actions, state
}

func TestGuard_CollectSampleDerivesCosts(t *testing.T) {
	guard, _, state := testGuard(t, &fixedSource{usage: Usage{TokensUsed: 1_000_000}}, nil)

	sample, err := guard.CollectSample(context.Background())
	if err != nil {
		t.Fatalf("CollectSample: %v", err)
	}
	if sample.DailyCost != 2.0 {
		t.Errorf("expected daily cost 2.0 for 1M tokens, got %v", sample.DailyCost)
	}
	if sample.MonthlyCost != 60.0 {
		t.Errorf("expected monthly cost 60.0, got %v", sample.MonthlyCost)
	}
	if len(state.samples) != 1 {
		t.Errorf("expected sample persisted, got %d", len(state.samples))
	}
}

func TestGuard_CollectSampleUpstreamFailure(t *testing.T) {
	guard, _, _ := testGuard(t, &fixedSource{err: errors.New("scrape timeout")}, nil)

	_, err := guard.CollectSample(context.Background())
	if !errors.Is(err, governance.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestGuard_AutoThrottleIdempotentReplace(t *testing.T) {
	guard, _, _ := testGuard(t, &fixedSource{}, nil)
	ctx := context.Background()

	guard.AutoThrottle(ctx, "ai", "first breach")
	guard.AutoThrottle(ctx, "ai", "second breach")

	ts := guard.Throttles()
	if len(ts.Entries) != 1 {
		t.Fatalf("expected a single entry after re-throttle, got %d", len(ts.Entries))
	}
	if ts.Entries[0].Reason != "second breach" {
		t.Errorf("expected entry replaced, got reason %q", ts.Entries[0].Reason)
	}
	if !guard.IsThrottled("ai") {
		t.Error("module must report throttled")
	}
	if guard.IsThrottled("billing") {
		t.Error("unthrottled module must not report throttled")
	}
}

func TestGuard_ThrottleExpirySweptOnRead(t *testing.T) {
	guard, _, _ := testGuard(t, &fixedSource{}, nil)

	guard.mu.Lock()
	guard.throttled["ai"] = ThrottleEntry{
		Module:    "ai",
		Reason:    "expired",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	guard.mu.Unlock()

	if guard.IsThrottled("ai") {
		t.Fatal("expired throttle must not report active")
	}
	if ts := guard.Throttles(); len(ts.Entries) != 0 {
		t.Fatalf("expired entries must be swept, got %+v", ts.Entries)
	}
}

func TestGuard_LowCostModeOneWay(t *testing.T) {
	guard, _, _ := testGuard(t, &fixedSource{}, nil)
	ctx := context.Background()

	guard.EnableLowCostMode(ctx)
	guard.EnableLowCostMode(ctx) // second enable is a no-op
	if !guard.LowCostMode() {
		t.Fatal("expected low cost mode set")
	}

	// Only an explicit operator action clears it.
	guard.DisableLowCostMode(ctx, "alice")
	if guard.LowCostMode() {
		t.Fatal("expected low cost mode cleared by operator")
	}
}

func TestGuard_ApprovalGatedRuleEnqueuesImpactC(t *testing.T) {
	rules := []Rule{
		{Metric: "monthly_cost", Threshold: 100, Severity: "critical", AutoAction: AutoLowCostMode, RequiresApproval: true},
	}
	guard, actions, _ := testGuard(t, &fixedSource{}, rules)

	guard.DetectAndReact(context.Background(), &Sample{MonthlyCost: 150})

	if guard.LowCostMode() {
		t.Fatal("approval-gated rule must not self-execute")
	}

	pending, err := actions.ListPending(context.Background(), "platform")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending cost action, got %d", len(pending))
	}
	a := pending[0]
	if a.ActionType != governance.TypeCostControl || a.ImpactLevel != governance.ImpactC {
		t.Errorf("expected impact-C cost_control action, got %+v", a)
	}
}

func TestGuard_AutoActionsApplyWithoutApproval(t *testing.T) {
	rules := []Rule{
		{Metric: "daily_cost", Threshold: 10, Severity: "warning", AutoAction: AutoThrottleAI},
		{Metric: "compute_pct", Threshold: 80, Severity: "critical", AutoAction: AutoLowCostMode},
	}
	guard, actions, _ := testGuard(t, &fixedSource{}, rules)

	guard.DetectAndReact(context.Background(), &Sample{DailyCost: 20, ComputePct: 95})

	if !guard.IsThrottled("ai") {
		t.Error("expected ai module throttled")
	}
	if !guard.LowCostMode() {
		t.Error("expected low cost mode enabled")
	}
	if pending, _ := actions.ListPending(context.Background(), "platform"); len(pending) != 0 {
		t.Errorf("auto actions must not enqueue approvals, got %d", len(pending))
	}
}

func TestGuard_RestoreReloadsState(t *testing.T) {
	state := newMemState()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = state.AppendSample(ctx, Sample{DailyCost: float64(i)})
	}
	_ = state.SaveAlert(ctx, &Alert{ID: "al1", Metric: "daily_cost", DetectedAt: time.Now().UTC()})
	_ = state.SaveThrottleState(ctx, ThrottleState{
		Entries:     []ThrottleEntry{{Module: "ai", ExpiresAt: time.Now().Add(time.Hour)}},
		LowCostMode: true,
	})

	gate := config.NewGateWithLookup(func(string) string { return "post" }, zap.NewNop())
	guard := NewGuard(Options{
		Source: &fixedSource{},
		State:  state,
		Gate:   gate,
		Events: audit.NewLogWriter(zap.NewNop()),
		Logger: zap.NewNop(),
	})
	guard.Restore(ctx)

	if guard.window.Len() != 5 {
		t.Errorf("expected 5 restored samples, got %d", guard.window.Len())
	}
	if alerts := guard.ActiveAlerts(); len(alerts) != 1 || alerts[0].Metric != "daily_cost" {
		t.Errorf("expected restored alert, got %+v", alerts)
	}
	if !guard.LowCostMode() || !guard.IsThrottled("ai") {
		t.Error("expected restored throttle state")
	}
}

func TestGuard_SummaryBudget(t *testing.T) {
	guard, _, _ := testGuard(t, &fixedSource{}, nil)
	for i := 0; i < trendWindow; i++ {
		guard.window.Append(costSample(10))
	}

	s := guard.Summary()
	// Projected month: 10/day over 30 days against a 2000 budget.
	if s.BudgetRemaining != 2000-300 {
		t.Errorf("expected remaining 1700, got %v", s.BudgetRemaining)
	}
	if s.BudgetPercentUsed != 15 {
		t.Errorf("expected 15%% used, got %v", s.BudgetPercentUsed)
	}
}
