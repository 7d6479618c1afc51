package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleCreateOperator handles POST /api/autopilot/operators. The plaintext
// token appears in this response only; we store just the bcrypt hash.
func (d *Dependencies) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	if d.Operators == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Operator store not configured"})
		return
	}

	var req CreateOperatorReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name is required"})
		return
	}
	if req.Role == "" {
		req.Role = "operator"
	}

	op, token, err := d.Operators.CreateOperator(r.Context(), req.Name, req.Role)
	if err != nil {
		d.Logger.Error("create operator failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateOperatorResp{
		ID:          op.ID,
		Name:        op.Name,
		Token:       token,
		TokenPrefix: op.TokenPrefix,
		Role:        op.Role,
		CreatedAt:   op.CreatedAt,
	})
}
