package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/autopilot/internal/audit"
)

// handleListEvents handles GET /api/autopilot/events. The audit trail lives
// in ClickHouse; without it configured the endpoint reports unavailable
// rather than pretending there are no events.
func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Events == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Event store not configured"})
		return
	}

	q := r.URL.Query()
	tenant := q.Get("tenant")
	if tenant == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tenant query parameter is required"})
		return
	}

	params := audit.ListEventsParams{
		TenantID: tenant,
		Page:     parseIntDefault(q.Get("page"), 1),
		PageSize: parseIntDefault(q.Get("page_size"), 50),
	}
	if v := q.Get("event_type"); v != "" {
		params.EventType = &v
	}
	if v := q.Get("action_id"); v != "" {
		params.ActionID = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "start_time must be RFC 3339"})
			return
		}
		params.StartTime = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "end_time must be RFC 3339"})
			return
		}
		params.EndTime = &t
	}

	rows, total, err := d.Events.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("event query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Internal server error"})
		return
	}

	resp := EventListResp{
		Events:   make([]EventResp, 0, len(rows)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, row := range rows {
		resp.Events = append(resp.Events, toEventResp(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toEventResp(row audit.EventRow) EventResp {
	return EventResp{
		EventID:     row.EventID,
		EventType:   row.EventType,
		Timestamp:   row.Timestamp,
		TenantID:    row.TenantID,
		ActorID:     row.ActorID,
		ActionID:    row.ActionID,
		ActionType:  row.ActionType,
		ImpactLevel: row.ImpactLevel,
		Stage:       row.Stage,
		DryRun:      row.DryRun == 1,
		MetricName:  row.MetricName,
		Severity:    row.Severity,
		MetricValue: row.MetricValue,
		Threshold:   row.Threshold,
		Reason:      row.Reason,
		Source:      row.Source,
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
