package api

import (
	"net/http"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
)

type providerResponse struct {
	*model.Provider
	Score    *model.ProviderScore `json:"score"`
	Drift    *model.DriftScore    `json:"drift"`
	AuditLog []model.AuditEntry   `json:"audit_log"`
}

type fieldValidation struct {
	Confidence float64          `json:"confidence"`
	Sources    []model.SourceID `json:"sources"`
}

type driftDetails struct {
	*model.DriftScore
	Explanation string `json:"explanation"`
}

type detailsResponse struct {
	Provider   *model.Provider                     `json:"provider"`
	Validation map[model.FieldName]fieldValidation `json:"validation"`
	PCS        *model.ProviderScore                `json:"pcs"`
	Drift      *driftDetails                       `json:"drift"`
}

type ocrResponse struct {
	Exists        bool     `json:"exists"`
	DocType       string   `json:"doc_type,omitempty"`
	OCRText       string   `json:"ocr_text,omitempty"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`
	Path          string   `json:"path,omitempty"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}
	rows, err := s.store.ListProviderSummaries(r.Context(), store.ProviderFilter{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.ProviderSummary{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	score, drift, err := s.store.GetScores(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	audit, err := s.store.ListAudit(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if audit == nil {
		audit = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, providerResponse{Provider: p, Score: score, Drift: drift, AuditLog: audit})
}

// handleProviderDetails aggregates the latest confidence per field with the
// provider's scores for the detail view.
func (s *Server) handleProviderDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	score, drift, err := s.store.GetScores(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := s.store.ListFieldConfidence(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := detailsResponse{
		Provider:   p,
		Validation: make(map[model.FieldName]fieldValidation),
		PCS:        score,
	}
	// History is newest first.
	for _, fc := range history {
		if _, seen := resp.Validation[fc.FieldName]; !seen {
			resp.Validation[fc.FieldName] = fieldValidation{Confidence: fc.Confidence, Sources: fc.Sources}
		}
	}
	if drift != nil {
		resp.Drift = &driftDetails{DriftScore: drift, Explanation: driftExplanation(drift.Bucket)}
	}
	writeJSON(w, http.StatusOK, resp)
}

func driftExplanation(b model.DriftBucket) string {
	if b == model.DriftHigh {
		return "High drift detected due to license expiry proximity."
	}
	return "Stable data patterns."
}

func (s *Server) handleProviderQA(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetProvider(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.store.ListFieldConfidence(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.FieldConfidence{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleProviderOCR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	docs, err := s.store.ListDocuments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(docs) == 0 {
		writeJSON(w, http.StatusOK, ocrResponse{})
		return
	}
	d := docs[0]
	writeJSON(w, http.StatusOK, ocrResponse{
		Exists:        true,
		DocType:       d.DocType,
		OCRText:       d.OCRText,
		OCRConfidence: d.OCRConfidence,
		Path:          d.Path,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.engine.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
