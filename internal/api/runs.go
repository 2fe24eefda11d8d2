package api

import (
	"net/http"

	"github.com/sells-group/provider-reconcile/internal/model"
)

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	runType, err := model.ParseRunType(r.URL.Query().Get("type"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	run, err := s.engine.RunBatch(r.Context(), runType, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRecomputeScores refreshes one provider when provider_id is given,
// otherwise every provider.
func (s *Server) handleRecomputeScores(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt(w, r, "provider_id")
	if !ok {
		return
	}
	ctx := r.Context()
	if id > 0 {
		score, drift, err := s.engine.Scores().Compute(ctx, int64(id))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"score": score, "drift": drift})
		return
	}

	n, err := s.engine.Scores().ComputeAll(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
