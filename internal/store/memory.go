package store

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge-ai/autopilot/internal/governance"
)

// MemoryActions is an in-memory ActionStore with the same compare-and-swap
// resolution semantics as the Postgres implementation. Used in tests and
// when no POSTGRES_DSN is configured.
type MemoryActions struct {
	mu      sync.Mutex
	byID    map[string]*governance.Action
	ordered []string // creation order
}

// NewMemoryActions creates an empty in-memory action store.
func NewMemoryActions() *MemoryActions {
	return &MemoryActions{byID: make(map[string]*governance.Action)}
}

func (m *MemoryActions) Enqueue(_ context.Context, a *governance.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.byID[a.ID] = &cp
	m.ordered = append(m.ordered, a.ID)
	return nil
}

func (m *MemoryActions) ListPending(_ context.Context, tenantID string) ([]*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*governance.Action
	for _, id := range m.ordered {
		a := m.byID[id]
		if a.TenantID == tenantID && a.Status == governance.StatusPending {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryActions) ListByTypeStatus(_ context.Context, actionType string, status governance.Status) ([]*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*governance.Action
	for _, id := range m.ordered {
		a := m.byID[id]
		if a.ActionType == actionType && a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryActions) Get(_ context.Context, id string) (*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, governance.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Resolve performs the check-then-set under a single lock: exactly one of two
// racing resolutions wins, the other observes ErrAlreadyResolved.
func (m *MemoryActions) Resolve(_ context.Context, id string, res governance.Resolution) (*governance.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, governance.ErrNotFound
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
