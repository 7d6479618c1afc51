// Package audit persists governance events: every enqueue, resolution, spike
// alert, throttle and deletion execution leaves one row in the audit trail.
package audit

import "time"

// EventWriter is the interface for writing governance events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *GovernanceEvent)
	Close()
}

// Event types recorded in the governance audit trail.
const (
	EventActionEnqueued   = "action_enqueued"
	EventActionApproved   = "action_approved"
	EventActionRejected   = "action_rejected"
	EventAlertRaised      = "alert_raised"
	EventAlertResolved    = "alert_resolved"
	EventThrottleApplied  = "throttle_applied"
	EventLowCostMode      = "low_cost_mode"
	EventDeletionExecuted = "deletion_executed"
	EventDryRun           = "dry_run"
)

// GovernanceEvent represents a single governance decision to be persisted.
// Fields that do not apply to a given event type are left zero.
type GovernanceEvent struct {
	EventID     string
	EventType   string
	Timestamp   time.Time
	TenantID    string
	ActorID     string
	ActionID    string
	ActionType  string
	ImpactLevel string
	Stage       string
	DryRun      bool
	MetricName  string
	Severity    string
	MetricValue float64
	Threshold   float64
	Reason      string
	Source      string // "governor", "costguard", "deletion", "proposer"
}
