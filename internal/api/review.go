package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/reconcile"
	"github.com/sells-group/provider-reconcile/internal/store"
)

func (s *Server) handleListReview(w http.ResponseWriter, r *http.Request) {
	status := model.ReviewStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ReviewPending, model.ReviewApproved, model.ReviewOverridden, model.ReviewRejected:
	default:
		writeMessage(w, http.StatusBadRequest, "invalid status")
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	items, err := s.store.ListReviewItems(r.Context(), store.ReviewFilter{Status: status, Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.ManualReviewItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleResolveReview serves approve, override and reject. The override
// value comes from the value query parameter or a {"value": ...} body.
func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	action, err := reconcile.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, "unknown action")
		return
	}

	value := r.URL.Query().Get("value")
	if action == model.ReviewActionOverride && value == "" && r.ContentLength != 0 {
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		value = body.Value
	}

	res, err := s.engine.ResolveReview(r.Context(), id, action, value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "resolution": res})
}
