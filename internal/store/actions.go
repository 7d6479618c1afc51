package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowforge-ai/autopilot/internal/governance"
)

// Enqueue inserts a new pending action into the action log.
func (s *Store) Enqueue(ctx context.Context, a *governance.Action) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (id, action_type, payload, reason, impact_level,
		                     tenant_id, owner_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.ActionType, []byte(a.Payload), a.Reason, string(a.ImpactLevel),
		a.TenantID, a.OwnerID, string(a.Status), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w: %v", governance.ErrPersistence, err)
	}
	return nil
}

// ListPending returns a tenant's pending actions in creation order.
func (s *Store) ListPending(ctx context.Context, tenantID string) ([]*governance.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_type, payload, reason, impact_level,
		       tenant_id, owner_id, status, created_at,
		       resolved_at, COALESCE(resolved_by, ''), COALESCE(resolution_reason, '')
		FROM actions
		WHERE tenant_id = $1 AND status = 'pending'
		ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w: %v", governance.ErrPersistence, err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ListByTypeStatus returns all actions of one type in one state, across
// tenants, in creation order.
func (s *Store) ListByTypeStatus(ctx context.Context, actionType string, status governance.Status) ([]*governance.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_type, payload, reason, impact_level,
		       tenant_id, owner_id, status, created_at,
		       resolved_at, COALESCE(resolved_by, ''), COALESCE(resolution_reason, '')
		FROM actions
		WHERE action_type = $1 AND status = $2
		ORDER BY created_at ASC`, actionType, string(status))
	if err != nil {
		return nil, fmt.Errorf("ListByTypeStatus: %w: %v", governance.ErrPersistence, err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// Get returns an action by id, or governance.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*governance.Action, error) {
	a, err := s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, action_type, payload, reason, impact_level,
		       tenant_id, owner_id, status, created_at,
		       resolved_at, COALESCE(resolved_by, ''), COALESCE(resolution_reason, '')
		FROM actions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, governance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w: %v", governance.ErrPersistence, err)
	}
	return a, nil
}

// Resolve applies an approve/reject decision with compare-and-swap semantics:
// the conditional UPDATE only matches a pending row, so of two racing
// resolutions exactly one wins and the other observes ErrAlreadyResolved.
func (s *Store) Resolve(ctx context.Context, id string, res governance.Resolution) (*governance.Action, error) {
	a, err := s.scanOne(s.db.QueryRowContext(ctx, `
		UPDATE actions SET
			status            = $2,
			resolved_at       = now(),
			resolved_by       = $3,
			resolution_reason = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING id, action_type, payload, reason, impact_level,
		          tenant_id, owner_id, status, created_at,
		          resolved_at, COALESCE(resolved_by, ''), COALESCE(resolution_reason, '')`,
		id, string(res.Status), res.ProcessedBy, res.Reason))
	if err == sql.ErrNoRows {
		// No pending row matched: distinguish unknown id from terminal state.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, governance.ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("Resolve: %w: %v", governance.ErrPersistence, err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row rowScanner) (*governance.Action, error) {
	var a governance.Action
	var payload []byte
	var impact, status string
	var resolvedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.ActionType, &payload, &a.Reason, &impact,
		&a.TenantID, &a.OwnerID, &status, &a.CreatedAt,
		&resolvedAt, &a.ResolvedBy, &a.ResolutionReason); err != nil {
		return nil, err
	}
	a.Payload = payload
	a.ImpactLevel = governance.ImpactLevel(impact)
	a.Status = governance.Status(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func scanActions(rows *sql.Rows) ([]*governance.Action, error) {
	var actions []*governance.Action
	for rows.Next() {
		var a governance.Action
		var payload []byte
		var impact, status string
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.ActionType, &payload, &a.Reason, &impact,
			&a.TenantID, &a.OwnerID, &status, &a.CreatedAt,
			&resolvedAt, &a.ResolvedBy, &a.ResolutionReason); err != nil {
			return nil, fmt.Errorf("scanActions: %w: %v", governance.ErrPersistence, err)
		}
		a.Payload = payload
		a.ImpactLevel = governance.ImpactLevel(impact)
		a.Status = governance.Status(status)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
