package api

import (
	"net/http"
)

// handleScheduleDeletion handles POST /v1/deletions/schedule. The deletion is
// not performed here; it becomes a pending impact-C action and runs only
// after approval plus the grace period.
func (d *Dependencies) handleScheduleDeletion(w http.ResponseWriter, r *http.Request) {
	var req ScheduleDeletionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	res, err := d.Scheduler.Schedule(r.Context(), req.UserID, req.TenantID, req.GracePeriodDays)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// handleCancelDeletion handles POST /v1/deletions/cancel. Valid only while
// the deletion action is still pending.
func (d *Dependencies) handleCancelDeletion(w http.ResponseWriter, r *http.Request) {
	var req CancelDeletionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	a, err := d.Scheduler.Cancel(r.Context(), req.UserID, req.TenantID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResp(a))
}
