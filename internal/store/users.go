package store

import (
	"context"
	"fmt"
	"sync"
)

// Anonymize rewrites a user's identifying fields with the pseudonym,
// preserving the row (and so the referential integrity of aggregate and
// audit data). Already-anonymized rows match nothing and the call is a no-op.
func (s *Store) Anonymize(ctx context.Context, tenantID, userID, pseudonym string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			external_id = $3,
			email       = $3 || '@anonymized.invalid',
			full_name   = $3,
			anonymized  = true,
			updated_at  = now()
		WHERE tenant_id = $1 AND external_id = $2 AND NOT anonymized`,
		tenantID, userID, pseudonym)
	if err != nil {
		return fmt.Errorf("Anonymize: %w", err)
	}
	return nil
}

// MemoryUsers is an in-memory deletion.UserStore for tests.
type MemoryUsers struct {
	mu         sync.Mutex
	pseudonyms map[string]string // tenant/user -> pseudonym
}

// NewMemoryUsers creates an empty in-memory user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{pseudonyms: make(map[string]string)}
}

func (m *MemoryUsers) Anonymize(_ context.Context, tenantID, userID, pseudonym string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantID + "/" + userID
	if _, done := m.pseudonyms[key]; done {
		return nil // already anonymized, safe no-op
	}
	m.pseudonyms[key] = pseudonym
	return nil
}

// Pseudonym returns the recorded pseudonym for a user, if any.
func (m *MemoryUsers) Pseudonym(tenantID, userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pseudonyms[tenantID+"/"+userID]
	return p, ok
}
