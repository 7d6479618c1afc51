package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowforge-ai/autopilot/internal/costguard"
)

// AppendSample inserts a cost sample and trims history beyond the window cap
// in one transaction, so a crash mid-write never leaves a half-trimmed table.
func (s *Store) AppendSample(ctx context.Context, sample costguard.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AppendSample: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cost_samples (ts, tokens_used, requests, compute_pct,
		                          memory_pct, transactions, daily_cost, monthly_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sample.Timestamp, sample.TokensUsed, sample.Requests, sample.ComputePct,
		sample.MemoryPct, sample.Transactions, sample.DailyCost, sample.MonthlyCost,
	)
	if err != nil {
		return fmt.Errorf("AppendSample: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cost_samples
		WHERE ts NOT IN (
			SELECT ts FROM cost_samples ORDER BY ts DESC LIMIT $1
		)`, costguard.WindowCap)
	if err != nil {
		return fmt.Errorf("AppendSample: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("AppendSample: %w", err)
	}
	return nil
}

// LoadSamples returns up to limit samples, oldest first.
func (s *Store) LoadSamples(ctx context.Context, limit int) ([]costguard.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, tokens_used, requests, compute_pct,
		       memory_pct, transactions, daily_cost, monthly_cost
		FROM (
			SELECT * FROM cost_samples ORDER BY ts DESC LIMIT $1
		) recent
		ORDER BY ts ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("LoadSamples: %w", err)
	}
	defer rows.Close()

	var samples []costguard.Sample
	for rows.Next() {
		var sm costguard.Sample
		if err := rows.Scan(&sm.Timestamp, &sm.TokensUsed, &sm.Requests, &sm.ComputePct,
			&sm.MemoryPct, &sm.Transactions, &sm.DailyCost, &sm.MonthlyCost); err != nil {
			return nil, fmt.Errorf("LoadSamples: %w", err)
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// SaveAlert upserts an alert keyed by metric name. Resolved alerts keep their
// row (audit trail); the active-alert invariant is held by the unique key on
// (metric_name) for unresolved rows.
func (s *Store) SaveAlert(ctx context.Context, a *costguard.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spike_alerts (id, metric_name, severity, current_value,
		                          threshold_value, percent_over, detected_at,
		                          resolved_at, auto_action, requires_approval)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			resolved_at   = EXCLUDED.resolved_at`,
		a.ID, a.Metric, a.Severity, a.CurrentValue,
		a.Threshold, a.PercentOver, a.DetectedAt,
		a.ResolvedAt, a.AutoAction, a.RequiresApproval,
	)
	if err != nil {
		return fmt.Errorf("SaveAlert: %w", err)
	}
	return nil
}

// LoadActiveAlerts returns the unresolved alerts.
func (s *Store) LoadActiveAlerts(ctx context.Context) ([]*costguard.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metric_name, severity, current_value,
		       threshold_value, percent_over, detected_at,
		       resolved_at, COALESCE(auto_action, ''), requires_approval
		FROM spike_alerts
		WHERE resolved_at IS NULL
		ORDER BY detected_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("LoadActiveAlerts: %w", err)
	}
	defer rows.Close()

	var alerts []*costguard.Alert
	for rows.Next() {
		var a costguard.Alert
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Metric, &a.Severity, &a.CurrentValue,
			&a.Threshold, &a.PercentOver, &a.DetectedAt,
			&resolvedAt, &a.AutoAction, &a.RequiresApproval); err != nil {
			return nil, fmt.Errorf("LoadActiveAlerts: %w", err)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// SaveThrottleState replaces the single throttle state record.
func (s *Store) SaveThrottleState(ctx context.Context, ts costguard.ThrottleState) error {
	doc, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("SaveThrottleState: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO throttle_state (singleton, doc, updated_at)
		VALUES (true, $1, now())
		ON CONFLICT (singleton) DO UPDATE SET
			doc        = EXCLUDED.doc,
			updated_at = now()`, doc)
	if err != nil {
		return fmt.Errorf("SaveThrottleState: %w", err)
	}
	return nil
}

// LoadThrottleState returns the throttle state record, or nil if none exists.
func (s *Store) LoadThrottleState(ctx context.Context) (*costguard.ThrottleState, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM throttle_state WHERE singleton = true`).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadThrottleState: %w", err)
	}

	var ts costguard.ThrottleState
	if err := json.Unmarshal(doc, &ts); err != nil {
		return nil, fmt.Errorf("LoadThrottleState: %w", err)
	}
	return &ts, nil
}
