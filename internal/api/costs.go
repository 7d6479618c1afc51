package api

import (
	"net/http"
)

// handleForecast handles GET /api/autopilot/forecast.
func (d *Dependencies) handleForecast(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Guard.Summary())
}

// handleAlerts handles GET /api/autopilot/alerts.
func (d *Dependencies) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": d.Guard.ActiveAlerts(),
	})
}

// handleThrottles handles GET /api/autopilot/throttles.
func (d *Dependencies) handleThrottles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Guard.Throttles())
}

// handleLowCostMode handles POST /api/autopilot/throttles/low-cost-mode.
// Enabling is permitted from any caller; disabling is an operator decision
// and is attributed to the authenticated operator in the audit trail.
func (d *Dependencies) handleLowCostMode(w http.ResponseWriter, r *http.Request) {
	var req LowCostModeReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	if req.Enabled {
		d.Guard.EnableLowCostMode(r.Context())
	} else {
		d.Guard.DisableLowCostMode(r.Context(), resolverName(r))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"low_cost_mode": d.Guard.LowCostMode()})
}
