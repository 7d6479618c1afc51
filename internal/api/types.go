package api

import (
	"encoding/json"
	"time"

	"github.com/flowforge-ai/autopilot/internal/governance"
)

// --- Actions ---

// EnqueueActionReq is the JSON body for POST /v1/actions.
type EnqueueActionReq struct {
	ActionType  string          `json:"action_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Reason      string          `json:"reason"`
	ImpactLevel string          `json:"impact_level"`
	TenantID    string          `json:"tenant_id"`
	OwnerID     string          `json:"owner_id,omitempty"`
}

// ResolveActionReq is the JSON body for approve/reject endpoints.
type ResolveActionReq struct {
	Reason string `json:"reason,omitempty"`
}

// ActionResp mirrors a governance.Action on the wire.
type ActionResp struct {
	ID               string          `json:"id"`
	ActionType       string          `json:"action_type"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Reason           string          `json:"reason"`
	ImpactLevel      string          `json:"impact_level"`
	TenantID         string          `json:"tenant_id"`
	OwnerID          string          `json:"owner_id,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy       string          `json:"resolved_by,omitempty"`
	ResolutionReason string          `json:"resolution_reason,omitempty"`
}

func toActionResp(a *governance.Action) ActionResp {
	return ActionResp{
		ID:               a.ID,
		ActionType:       a.ActionType,
		Payload:          a.Payload,
		Reason:           a.Reason,
		ImpactLevel:      string(a.ImpactLevel),
		TenantID:         a.TenantID,
		OwnerID:          a.OwnerID,
		Status:           string(a.Status),
		CreatedAt:        a.CreatedAt,
		ResolvedAt:       a.ResolvedAt,
		ResolvedBy:       a.ResolvedBy,
		ResolutionReason: a.ResolutionReason,
	}
}

// ActionListResp is the body for GET /v1/actions.
type ActionListResp struct {
	Actions []ActionResp `json:"actions"`
	Total   int          `json:"total"`
}

// --- Deletions ---

// ScheduleDeletionReq is the JSON body for POST /v1/deletions/schedule.
type ScheduleDeletionReq struct {
	UserID          string `json:"user_id"`
	TenantID        string `json:"tenant_id"`
	GracePeriodDays int    `json:"grace_period_days,omitempty"`
}

// CancelDeletionReq is the JSON body for POST /v1/deletions/cancel.
type CancelDeletionReq struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

// --- Operators ---

// CreateOperatorReq is the JSON body for POST /api/autopilot/operators.
type CreateOperatorReq struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// CreateOperatorResp includes the plaintext token (shown once).
type CreateOperatorResp struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Token       string    `json:"token"`
	TokenPrefix string    `json:"token_prefix"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// --- Cost guard ---

// LowCostModeReq toggles the low-cost flag. Disabling requires an explicit
// operator; there is no automatic clearing.
type LowCostModeReq struct {
	Enabled bool `json:"enabled"`
}

// --- Events ---

// EventResp mirrors an audit.EventRow on the wire.
type EventResp struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	TenantID    string    `json:"tenant_id"`
	ActorID     string    `json:"actor_id,omitempty"`
	ActionID    string    `json:"action_id,omitempty"`
	ActionType  string    `json:"action_type,omitempty"`
	ImpactLevel string    `json:"impact_level,omitempty"`
	Stage       string    `json:"stage"`
	DryRun      bool      `json:"dry_run"`
	MetricName  string    `json:"metric_name,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	MetricValue float64   `json:"metric_value,omitempty"`
	Threshold   float64   `json:"threshold,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Source      string    `json:"source"`
}

// EventListResp is the body for GET /api/autopilot/events.
type EventListResp struct {
	Events   []EventResp `json:"events"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
