package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
)

// stubStore is a minimal in-memory ActionStore for governor tests. The full
// store implementation lives in internal/store and has its own tests.
type stubStore struct {
	mu      sync.Mutex
	actions map[string]*Action
	order   []string
}

func newStubStore() *stubStore {
	return &stubStore{actions: make(map[string]*Action)}
}

func (s *stubStore) Enqueue(_ context.Context, a *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.actions[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return nil
}

func (s *stubStore) ListPending(_ context.Context, tenantID string) ([]*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Action
	for _, id := range s.order {
		a := s.actions[id]
		if a.TenantID == tenantID && a.Status == StatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) ListByTypeStatus(_ context.Context, actionType string, status Status) ([]*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Action
	for _, id := range s.order {
		a := s.actions[id]
		if a.ActionType == actionType && a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) Get(_ context.Context, id string) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *stubStore) Resolve(_ context.Context, id string, res Resolution) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	now := time.Now().UTC()
	a.Status = res.Status
	a.ResolvedAt = &now
	a.ResolvedBy = res.ProcessedBy
	a.ResolutionReason = res.Reason
	cp := *a
	return &cp, nil
}

type captureEvents struct {
	mu     sync.Mutex
	events []*audit.GovernanceEvent
}

func (c *captureEvents) Write(e *audit.GovernanceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEvents) Close() {}

func (c *captureEvents) byType(eventType string) []*audit.GovernanceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.GovernanceEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testGovernor() (*Governor, *stubStore, *captureEvents) {
	st := newStubStore()
	events := &captureEvents{}
	gate := config.NewGateWithLookup(func(string) string { return "pre" }, zap.NewNop())
	return NewGovernor(st, gate, events, zap.NewNop()), st, events
}

func TestGovernor_EnqueueValidation(t *testing.T) {
	g, _, _ := testGovernor()
	ctx := context.Background()

	cases := []struct {
		name   string
		params EnqueueParams
	}{
		{"missing reason", EnqueueParams{ActionType: TypeExportData, ImpactLevel: ImpactB, TenantID: "t1"}},
		{"missing action type", EnqueueParams{Reason: "r", ImpactLevel: ImpactB, TenantID: "t1"}},
		{"missing tenant", EnqueueParams{ActionType: TypeExportData, Reason: "r", ImpactLevel: ImpactB}},
		{"bad impact", EnqueueParams{ActionType: TypeExportData, Reason: "r", ImpactLevel: "D", TenantID: "t1"}},
		{"empty impact", EnqueueParams{ActionType: TypeExportData, Reason: "r", TenantID: "t1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := g.Enqueue(ctx, tc.params); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestGovernor_EnqueueAssignsIdentityAndState(t *testing.T) {
	g, _, events := testGovernor()

	a, err := g.Enqueue(context.Background(), EnqueueParams{
		ActionType:  TypeExportData,
		Payload:     json.RawMessage(`{"format":"csv"}`),
		Reason:      "tenant requested export",
		ImpactLevel: ImpactB,
		TenantID:    "t1",
		OwnerID:     "reporting",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if a.ID == "" {
		t.Error("expected generated id")
	}
	if a.Status != StatusPending {
		t.Errorf("expected pending, got %q", a.Status)
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if a.ResolvedAt != nil {
		t.Error("new action must not be resolved")
	}
	if got := events.byType(audit.EventActionEnqueued); len(got) != 1 {
		t.Errorf("expected 1 enqueue event, got %d", len(got))
	}
}

func TestGovernor_ApproveIsTerminal(t *testing.T) {
	g, _, events := testGovernor()
	ctx := context.Background()

	a, err := g.Enqueue(ctx, EnqueueParams{
		ActionType: TypeGrowthMutation, Reason: "r", ImpactLevel: ImpactB, TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	approved, err := g.Approve(ctx, a.ID, "alice", "looks safe")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != StatusApproved || approved.ResolvedBy != "alice" || approved.ResolvedAt == nil {
		t.Errorf("unexpected resolution: %+v", approved)
	}

	if _, err := g.Approve(ctx, a.ID, "bob", ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second approve: expected ErrAlreadyResolved, got %v", err)
	}
	if _, err := g.Reject(ctx, a.ID, "bob", "changed my mind"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("reject after approve: expected ErrAlreadyResolved, got %v", err)
	}
	if got := events.byType(audit.EventActionApproved); len(got) != 1 {
		t.Errorf("expected exactly 1 approved event, got %d", len(got))
	}
}

func TestGovernor_RejectRequiresReason(t *testing.T) {
	g, _, _ := testGovernor()
	ctx := context.Background()

	a, err := g.Enqueue(ctx, EnqueueParams{
		ActionType: TypeContentDistribution, Reason: "r", ImpactLevel: ImpactB, TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if _, err := g.Reject(ctx, a.ID, "alice", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// The action is untouched after the failed reject.
	got, err := g.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected still pending, got %q", got.Status)
	}
}

func TestGovernor_ResolveUnknownAction(t *testing.T) {
	g, _, _ := testGovernor()
	if _, err := g.Approve(context.Background(), "no-such-id", "alice", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGovernor_ConcurrentResolutionOneWinner(t *testing.T) {
	g, _, _ := testGovernor()
	ctx := context.Background()

	a, err := g.Enqueue(ctx, EnqueueParams{
		ActionType: TypeDeleteData, Reason: "r", ImpactLevel: ImpactC, TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				_, errs[n] = g.Approve(ctx, a.ID, fmt.Sprintf("op-%d", n), "")
			} else {
				_, errs[n] = g.Reject(ctx, a.ID, fmt.Sprintf("op-%d", n), "no")
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyResolved):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning resolution, got %d", winners)
	}
}

func TestGovernor_ListPendingByTenant(t *testing.T) {
	g, _, _ := testGovernor()
	ctx := context.Background()

	for i, tenant := range []string{"t1", "t2", "t1"} {
		if _, err := g.Enqueue(ctx, EnqueueParams{
			ActionType: TypeExportData, Reason: fmt.Sprintf("r%d", i), ImpactLevel: ImpactA, TenantID: tenant,
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	pending, err := g.ListPending(ctx, "t1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending for t1, got %d", len(pending))
	}
	if pending[0].Reason != "r0" || pending[1].Reason != "r2" {
		t.Errorf("expected creation order, got %q then %q", pending[0].Reason, pending[1].Reason)
	}
}
