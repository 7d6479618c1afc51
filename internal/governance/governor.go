package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
)

// Governor is the public façade over the action store. It assigns ids,
// validates proposals, and records every decision in the audit trail.
type Governor struct {
	store  ActionStore
	gate   *config.Gate
	events audit.EventWriter
	logger *zap.Logger
}

// NewGovernor wires the governor to its store, the launch-stage gate and the
// audit sink.
func NewGovernor(store ActionStore, gate *config.Gate, events audit.EventWriter, logger *zap.Logger) *Governor {
	return &Governor{
		store:  store,
		gate:   gate,
		events: events,
		logger: logger,
	}
}

// Enqueue validates and persists a new pending action. It never executes
// anything; the returned action id is the caller's handle for polling.
func (g *Governor) Enqueue(ctx context.Context, p EnqueueParams) (*Action, error) {
	if p.Reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if !p.ImpactLevel.Valid() {
		return nil, fmt.Errorf("%w: impact_level must be one of A, B, C", ErrValidation)
	}
	if p.ActionType == "" {
		return nil, fmt.Errorf("%w: action_type is required", ErrValidation)
	}
	if p.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}

	a := &Action{
		ID:          uuid.New().String(),
		ActionType:  p.ActionType,
		Payload:     p.Payload,
		Reason:      p.Reason,
		ImpactLevel: p.ImpactLevel,
		TenantID:    p.TenantID,
		OwnerID:     p.OwnerID,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := g.store.Enqueue(ctx, a); err != nil {
		return nil, fmt.Errorf("Enqueue: %w", err)
	}

	g.logger.Info("action enqueued",
		zap.String("action_id", a.ID),
		zap.String("action_type", a.ActionType),
		zap.String("impact_level", string(a.ImpactLevel)),
		zap.String("tenant_id", a.TenantID),
	)
	g.record(audit.EventActionEnqueued, a, a.OwnerID, a.Reason)

	return a, nil
}

// ListPending returns the pending actions for a tenant in creation order.
func (g *Governor) ListPending(ctx context.Context, tenantID string) ([]*Action, error) {
	actions, err := g.store.ListPending(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	return actions, nil
}

// Get returns an action by id, or ErrNotFound.
func (g *Governor) Get(ctx context.Context, id string) (*Action, error) {
	a, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

// Approve resolves a pending action to approved. The approved record is the
// caller's license to actually perform the underlying operation; the governor
// itself dispatches nothing.
func (g *Governor) Approve(ctx context.Context, id, processedBy, reason string) (*Action, error) {
	a, err := g.store.Resolve(ctx, id, Resolution{
		Status:      StatusApproved,
		ProcessedBy: processedBy,
		Reason:      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}

	g.logger.Info("action approved",
		zap.String("action_id", a.ID),
		zap.String("processed_by", processedBy),
	)
	g.record(audit.EventActionApproved, a, processedBy, reason)

	return a, nil
}

// Reject resolves a pending action to rejected. A reason is required.
func (g *Governor) Reject(ctx context.Context, id, processedBy, reason string) (*Action, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	a, err := g.store.Resolve(ctx, id, Resolution{
		Status:      StatusRejected,
		ProcessedBy: processedBy,
		Reason:      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}

	g.logger.Info("action rejected",
		zap.String("action_id", a.ID),
		zap.String("processed_by", processedBy),
		zap.String("reason", reason),
	)
	g.record(audit.EventActionRejected, a, processedBy, reason)

	return a, nil
}

// ListByTypeStatus lists actions of one type in one state across tenants.
// Used by the deletion sweep to find approved delete_data actions.
func (g *Governor) ListByTypeStatus(ctx context.Context, actionType string, status Status) ([]*Action, error) {
	actions, err := g.store.ListByTypeStatus(ctx, actionType, status)
	if err != nil {
		return nil, fmt.Errorf("ListByTypeStatus: %w", err)
	}
	return actions, nil
}

func (g *Governor) record(eventType string, a *Action, actor, reason string) {
	g.events.Write(&audit.GovernanceEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		Timestamp:   time.Now().UTC(),
		TenantID:    a.TenantID,
		ActorID:     actor,
		ActionID:    a.ID,
		ActionType:  a.ActionType,
		ImpactLevel: string(a.ImpactLevel),
		Stage:       string(g.gate.Stage()),
		Reason:      reason,
		Source:      "governor",
	})
}
