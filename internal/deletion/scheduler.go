package deletion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
	"github.com/flowforge-ai/autopilot/internal/governance"
)

// DefaultGraceDays is the grace period applied when a request omits one.
const DefaultGraceDays = 30

// Request is the deletion document embedded in the action payload. There is
// no separate table; the action log is the system of record.
type Request struct {
	UserID          string    `json:"user_id"`
	TenantID        string    `json:"tenant_id"`
	GracePeriodDays int       `json:"grace_period_days"`
	Scope           string    `json:"scope"`
	RequestedAt     time.Time `json:"requested_at"`
}

// UserStore is the collaborator that rewrites a user's identifying fields.
// Anonymize must be idempotent: rewriting an already-pseudonymized user is a
// safe no-op.
type UserStore interface {
	Anonymize(ctx context.Context, tenantID, userID, pseudonym string) error
}

// Scheduler routes deletion requests through the governor (always impact C:
// irrevocable data loss never auto-executes, whatever the launch stage) and
// runs the post-grace sweep.
type Scheduler struct {
	governor *governance.Governor
	users    UserStore
	gate     *config.Gate
	events   audit.EventWriter
	logger   *zap.Logger

	salt     string

	// executed tracks action ids anonymized this process lifetime. The
	// action payload is immutable, so this set is not persisted; after a
	// restart the sweep revisits approved actions, which is safe because
	// Anonymize is idempotent on already-pseudonymized users.
	executed map[string]bool
}

// NewScheduler wires the deletion scheduler. salt feeds pseudonym derivation
// and must be stable across restarts for joins to survive.
func NewScheduler(governor *governance.Governor, users UserStore, gate *config.Gate, events audit.EventWriter, salt string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		governor: governor,
		users:    users,
		gate:     gate,
		events:   events,
		logger:   logger,
		salt:     salt,
		executed: make(map[string]bool),
	}
}

// ScheduleResult is returned to the original requester.
type ScheduleResult struct {
	Status   string `json:"status"`
	ActionID string `json:"action_id"`
}

// Schedule validates and enqueues a graced deletion. A failed enqueue is
// surfaced loudly to the requester; a half-completed governance record is
// worse than an explicit failure.
func (s *Scheduler) Schedule(ctx context.Context, userID, tenantID string, graceDays int) (*ScheduleResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", governance.ErrValidation)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", governance.ErrValidation)
	}
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}

	req := Request{
		UserID:          userID,
		TenantID:        tenantID,
		GracePeriodDays: graceDays,
		Scope:           "user_pii",
		RequestedAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("Schedule: %w", err)
	}

	action, err := s.governor.Enqueue(ctx, governance.EnqueueParams{
		ActionType:  governance.TypeDeleteData,
		Payload:     payload,
		Reason:      fmt.Sprintf("user %s requested erasure (grace %dd)", userID, graceDays),
		ImpactLevel: governance.ImpactC,
		TenantID:    tenantID,
		OwnerID:     userID,
	})
	if err != nil {
		return nil, fmt.Errorf("Schedule: %w", err)
	}

	return &ScheduleResult{
		Status:   "pending_approval",
		ActionID: action.ID,
	}, nil
}

// Cancel rejects the pending deletion action for a user.
// Returns governance.ErrNotFound if no matching pending request exists.
func (s *Scheduler) Cancel(ctx context.Context, userID, tenantID string) (*governance.Action, error) {
	pending, err := s.governor.ListPending(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	for _, a := range pending {
		if a.ActionType != governance.TypeDeleteData {
			continue
		}
		var req Request
		if err := json.Unmarshal(a.Payload, &req); err != nil {
			continue
		}
		if req.UserID != userID {
			continue
		}
		resolved, err := s.governor.Reject(ctx, a.ID, "deletion-scheduler",
			"cancelled by user before grace expiry")
		if err != nil {
			return nil, fmt.Errorf("Cancel: %w", err)
		}
		return resolved, nil
	}

	return nil, governance.ErrNotFound
}

// ExecuteIfDue sweeps approved delete_data actions and anonymizes those whose
// grace period has elapsed. Invoked by the compliance scheduler; a lazy check
// rather than a hard timer, so a cancelled (rejected) request is simply never
// observed here. Each action executes at most once; anonymization itself is
// idempotent by construction.
func (s *Scheduler) ExecuteIfDue(ctx context.Context) (int, error) {
	approved, err := s.governor.ListByTypeStatus(ctx, governance.TypeDeleteData, governance.StatusApproved)
	if err != nil {
		return 0, fmt.Errorf("ExecuteIfDue: %w", err)
	}

	executed := 0
	now := time.Now().UTC()
	for _, a := range approved {
		if s.executed[a.ID] {
			continue
		}

		var req Request
		if err := json.Unmarshal(a.Payload, &req); err != nil {
			s.logger.Error("malformed deletion payload, skipping",
				zap.String("action_id", a.ID),
				zap.Error(err),
			)
			continue
		}

		due := req.RequestedAt.AddDate(0, 0, req.GracePeriodDays)
		if now.Before(due) {
			continue
		}

		pseudonym := Pseudonymize(req.UserID, s.salt)
		if err := s.users.Anonymize(ctx, req.TenantID, req.UserID, pseudonym); err != nil {
			// Degrade and retry on the next sweep; a missed cycle must not
			// corrupt anything.
			s.logger.Warn("anonymization failed, will retry next sweep",
				zap.String("action_id", a.ID),
				zap.String("tenant_id", req.TenantID),
				zap.Error(err),
			)
			continue
		}

		s.executed[a.ID] = true
		executed++

		s.logger.Info("deletion executed",
			zap.String("action_id", a.ID),
			zap.String("tenant_id", req.TenantID),
			zap.String("pseudonym", pseudonym),
		)
		s.events.Write(&audit.GovernanceEvent{
			EventID:     uuid.New().String(),
			EventType:   audit.EventDeletionExecuted,
			Timestamp:   now,
			TenantID:    req.TenantID,
			ActionID:    a.ID,
			ActionType:  governance.TypeDeleteData,
			ImpactLevel: string(governance.ImpactC),
			Stage:       string(s.gate.Stage()),
			Reason:      "grace period elapsed, user anonymized",
			Source:      "deletion",
		})
	}

	return executed, nil
}
