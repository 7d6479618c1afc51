package api

import (
	"errors"
	"net/http"

	"github.com/flowforge-ai/autopilot/internal/governance"
)

// handleEnqueueAction handles POST /v1/actions.
func (d *Dependencies) handleEnqueueAction(w http.ResponseWriter, r *http.Request) {
	var req EnqueueActionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	a, err := d.Governor.Enqueue(r.Context(), governance.EnqueueParams{
		ActionType:  req.ActionType,
		Payload:     req.Payload,
		Reason:      req.Reason,
		ImpactLevel: governance.ImpactLevel(req.ImpactLevel),
		TenantID:    req.TenantID,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActionResp(a))
}

// handleListActions handles GET /v1/actions?tenant=<id>.
func (d *Dependencies) handleListActions(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tenant query parameter is required"})
		return
	}

	actions, err := d.Governor.ListPending(r.Context(), tenant)
	if err != nil {
		writeActionError(w, err)
		return
	}

	resp := ActionListResp{Actions: make([]ActionResp, 0, len(actions)), Total: len(actions)}
	for _, a := range actions {
		resp.Actions = append(resp.Actions, toActionResp(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetAction handles GET /v1/actions/{action_id}.
func (d *Dependencies) handleGetAction(w http.ResponseWriter, r *http.Request) {
	a, err := d.Governor.Get(r.Context(), r.PathValue("action_id"))
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResp(a))
}

// handleApproveAction handles POST /v1/actions/{action_id}/approve.
func (d *Dependencies) handleApproveAction(w http.ResponseWriter, r *http.Request) {
	var req ResolveActionReq
	if r.ContentLength > 0 {
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
			return
		}
	}

	a, err := d.Governor.Approve(r.Context(), r.PathValue("action_id"), resolverName(r), req.Reason)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResp(a))
}

// handleRejectAction handles POST /v1/actions/{action_id}/reject.
func (d *Dependencies) handleRejectAction(w http.ResponseWriter, r *http.Request) {
	var req ResolveActionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	a, err := d.Governor.Reject(r.Context(), r.PathValue("action_id"), resolverName(r), req.Reason)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResp(a))
}

// resolverName identifies who is resolving an action: the authenticated
// operator when auth is enabled, a fixed marker otherwise.
func resolverName(r *http.Request) string {
	if op := operatorFromContext(r.Context()); op != nil {
		return op.Name
	}
	return "operator"
}

// writeActionError maps governance sentinel errors onto HTTP status codes.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, governance.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	case errors.Is(err, governance.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Action not found"})
	case errors.Is(err, governance.ErrAlreadyResolved):
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: "Action already resolved"})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Internal server error"})
	}
}
