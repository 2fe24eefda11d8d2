package model

import "time"

// Candidate is one source's proposed value for one field.
type Candidate struct {
	Field  FieldName `json:"field"`
	Value  string    `json:"value"`
	Source SourceID  `json:"source"`
}

// ConsensusResult is the outcome of weighted voting over a field's candidates.
// Best is empty when no candidate was available, since empty values never
// become candidates.
type ConsensusResult struct {
	Field      FieldName  `json:"field"`
	Best       string     `json:"best_value,omitempty"`
	Confidence float64    `json:"confidence"`
	Sources    []SourceID `json:"contributing_sources"`
}

// HasBest reports whether a winning value exists.
func (r ConsensusResult) HasBest() bool { return r.Best != "" }

// DecisionKind enumerates the decision gate outcomes.
type DecisionKind string

const (
	DecisionNoOp         DecisionKind = "no_op"
	DecisionAutoUpdate   DecisionKind = "auto_update"
	DecisionManualReview DecisionKind = "manual_review"
)

// Decision is the gate outcome for one field. From/To carry the current and
// winning values for auto_update and manual_review; Reason is set only for
// manual_review.
type Decision struct {
	Kind       DecisionKind `json:"kind"`
	Field      FieldName    `json:"field"`
	From       string       `json:"from,omitempty"`
	To         string       `json:"to,omitempty"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason,omitempty"`
}

// FieldConfidence is an append-only history row recording the consensus
// confidence and contributing sources of one field evaluation.
type FieldConfidence struct {
	ID         int64      `json:"id,omitempty"`
	ProviderID int64      `json:"provider_id"`
	FieldName  FieldName  `json:"field_name"`
	Confidence float64    `json:"confidence"`
	Sources    []SourceID `json:"sources"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FieldOutcome pairs a field's consensus with the decision taken on it.
type FieldOutcome struct {
	Consensus ConsensusResult `json:"consensus"`
	Decision  Decision        `json:"decision"`
}

// DocumentOCR carries an OCR result to be written onto a document row.
type DocumentOCR struct {
	DocumentID int64   `json:"document_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Reconciliation is everything one provider pass produces. The store commits
// it atomically so a failed provider leaves no partial writes.
type Reconciliation struct {
	ProviderID int64          `json:"provider_id"`
	Fields     []FieldOutcome `json:"fields"`
	Documents  []DocumentOCR  `json:"documents,omitempty"`
	Actor      string         `json:"-"`
	At         time.Time      `json:"at"`
}

// Count returns the number of decisions of the given kind.
func (r *Reconciliation) Count(kind DecisionKind) int {
	n := 0
	for _, f := range r.Fields {
		if f.Decision.Kind == kind {
			n++
		}
	}
	return n
}
