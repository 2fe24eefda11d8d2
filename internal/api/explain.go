package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sells-group/provider-reconcile/internal/reconcile"
)

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req reconcile.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		writeMessage(w, http.StatusBadRequest, "field is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": s.explainer.Explain(r.Context(), req)})
}
