package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/costguard"
	"github.com/flowforge-ai/autopilot/internal/deletion"
	"github.com/flowforge-ai/autopilot/internal/governance"
	"github.com/flowforge-ai/autopilot/internal/metrics"
	"github.com/flowforge-ai/autopilot/internal/store"
)

// OperatorStore is the API-facing view of operator persistence.
type OperatorStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.Operator, error)
	CreateOperator(ctx context.Context, name, role string) (*store.Operator, string, error)
}

// Dependencies holds all shared state for API handlers.
type Dependencies struct {
	Logger    *zap.Logger
	Governor  *governance.Governor
	Guard     *costguard.Guard
	Scheduler *deletion.Scheduler
	Events    *audit.Reader     // nil when ClickHouse is not configured
	Operators OperatorStore     // nil disables operator auth
	Usage     *metrics.Counters // served requests feed the cost guard
	Registry  *prometheus.Registry
	CacheTTL  time.Duration
}

// NewRouter builds the HTTP handler with all routes and middleware attached.
func NewRouter(d *Dependencies) http.Handler {
	if d.CacheTTL == 0 {
		d.CacheTTL = 5 * time.Minute
	}
	if d.Operators == nil {
		d.Logger.Warn("no operator store configured, API authentication disabled")
	}

	mux := http.NewServeMux()

	// Action governance
	mux.HandleFunc("POST /v1/actions", d.authMiddleware(d.handleEnqueueAction))
	mux.HandleFunc("GET /v1/actions", d.authMiddleware(d.handleListActions))
	mux.HandleFunc("GET /v1/actions/{action_id}", d.authMiddleware(d.handleGetAction))
	mux.HandleFunc("POST /v1/actions/{action_id}/approve", d.authMiddleware(d.handleApproveAction))
	mux.HandleFunc("POST /v1/actions/{action_id}/reject", d.authMiddleware(d.handleRejectAction))

	// Graced deletion
	mux.HandleFunc("POST /v1/deletions/schedule", d.authMiddleware(d.handleScheduleDeletion))
	mux.HandleFunc("POST /v1/deletions/cancel", d.authMiddleware(d.handleCancelDeletion))

	// Cost guard
	mux.HandleFunc("GET /api/autopilot/forecast", d.authMiddleware(d.handleForecast))
	mux.HandleFunc("GET /api/autopilot/alerts", d.authMiddleware(d.handleAlerts))
	mux.HandleFunc("GET /api/autopilot/throttles", d.authMiddleware(d.handleThrottles))
	mux.HandleFunc("POST /api/autopilot/throttles/low-cost-mode", d.authMiddleware(d.handleLowCostMode))

	// Audit trail
	mux.HandleFunc("GET /api/autopilot/events", d.authMiddleware(d.handleListEvents))

	// Operator management
	mux.HandleFunc("POST /api/autopilot/operators", d.authMiddleware(d.handleCreateOperator))

	// Health and metrics, unauthenticated
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(requestLogging(mux, d.Logger, d.Usage))
}
