package store

import (
	"context"
	"sync"

	"github.com/flowforge-ai/autopilot/internal/costguard"
)

// MemoryState is an in-memory costguard.StateStore for tests and DSN-less
// development. Survives nothing, loses nothing mid-write.
type MemoryState struct {
	mu       sync.Mutex
	samples  []costguard.Sample
	alerts   map[string]*costguard.Alert // by id
	throttle *costguard.ThrottleState
}

// NewMemoryState creates an empty in-memory state store.
func NewMemoryState() *MemoryState {
	return &MemoryState{alerts: make(map[string]*costguard.Alert)}
}

func (m *MemoryState) AppendSample(_ context.Context, s costguard.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, s)
	if len(m.samples) > costguard.WindowCap {
		m.samples = m.samples[len(m.samples)-costguard.WindowCap:]
	}
	return nil
}

func (m *MemoryState) LoadSamples(_ context.Context, limit int) ([]costguard.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.samples)
	if limit < n {
		n = limit
	}
	out := make([]costguard.Sample, n)
	copy(out, m.samples[len(m.samples)-n:])
	return out, nil
}

func (m *MemoryState) SaveAlert(_ context.Context, a *costguard.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *MemoryState) LoadActiveAlerts(_ context.Context) ([]*costguard.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*costguard.Alert
	for _, a := range m.alerts {
		if a.ResolvedAt == nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryState) SaveThrottleState(_ context.Context, ts costguard.ThrottleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := ts
	m.throttle = &cp
	return nil
}

func (m *MemoryState) LoadThrottleState(_ context.Context) (*costguard.ThrottleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.throttle == nil {
		return nil, nil
	}
	cp := *m.throttle
	return &cp, nil
}
