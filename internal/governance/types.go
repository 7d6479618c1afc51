// Package governance implements the action approval queue: the only path by
// which an autonomous subsystem may request a sensitive or irreversible
// operation. The governor records and resolves proposals; it never dispatches
// side effects itself.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/flowforge-ai/autopilot/internal/config"
)

// ImpactLevel classifies the blast radius of a proposed action.
type ImpactLevel string

const (
	ImpactA ImpactLevel = "A" // informational, auto-approved
	ImpactB ImpactLevel = "B" // low-risk, may auto-execute post-launch
	ImpactC ImpactLevel = "C" // always requires explicit human approval
)

// Valid reports whether the impact level is one of A, B, C.
func (l ImpactLevel) Valid() bool {
	return l == ImpactA || l == ImpactB || l == ImpactC
}

// Risk maps an impact level onto the config gate's risk classification.
func (l ImpactLevel) Risk() config.RiskLevel {
	switch l {
	case ImpactA:
		return config.RiskLow
	case ImpactB:
		return config.RiskMedium
	default:
		return config.RiskHigh
	}
}

// Status is the lifecycle state of an action. Terminal once resolved.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Well-known action types. The payload schema is owned by the proposer;
// governance stores and forwards it opaquely.
const (
	TypeExportData          = "export_data"
	TypeDeleteData          = "delete_data"
	TypeContentDistribution = "content_distribution"
	TypeGrowthMutation      = "growth_mutation"
	TypeCostControl         = "cost_control"
)

// Action is a proposed operation awaiting or having received a disposition.
// ImpactLevel and Payload are immutable after creation; only Status,
// ResolvedAt, ResolvedBy and ResolutionReason mutate, exactly once.
type Action struct {
	ID               string          `json:"id"`
	ActionType       string          `json:"action_type"`
	Payload          json.RawMessage `json:"payload"`
	Reason           string          `json:"reason"`
	ImpactLevel      ImpactLevel     `json:"impact_level"`
	TenantID         string          `json:"tenant_id"`
	OwnerID          string          `json:"owner_id"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy       string          `json:"resolved_by,omitempty"`
	ResolutionReason string          `json:"resolution_reason,omitempty"`
}

// Sentinel errors for the governance error taxonomy.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("action not found")
	ErrAlreadyResolved = errors.New("action already resolved")
	ErrPersistence     = errors.New("persistence failure")
	ErrUpstream        = errors.New("upstream unavailable")
)

// EnqueueParams are the inputs to Governor.Enqueue.
type EnqueueParams struct {
	ActionType  string
	Payload     json.RawMessage
	Reason      string
	ImpactLevel ImpactLevel
	TenantID    string
	OwnerID     string
}

// Resolution carries the approve/reject decision applied to a pending action.
type Resolution struct {
	Status      Status // StatusApproved or StatusRejected
	ProcessedBy string
	Reason      string
}

// ActionStore is the durable action log. Resolve must be a compare-and-swap
// on status: exactly one of two racing resolutions wins, the other observes
// ErrAlreadyResolved.
type ActionStore interface {
	Enqueue(ctx context.Context, a *Action) error
	ListPending(ctx context.Context, tenantID string) ([]*Action, error)
	ListByTypeStatus(ctx context.Context, actionType string, status Status) ([]*Action, error)
	Get(ctx context.Context, id string) (*Action, error)
	Resolve(ctx context.Context, id string, res Resolution) (*Action, error)
}
