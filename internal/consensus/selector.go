package consensus

import (
	"context"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Selector picks the consensus value for one field. Implementations never
// return errors; any internal failure degrades to deterministic scoring.
type Selector interface {
	Select(ctx context.Context, field model.FieldName, candidates []model.Candidate) model.ConsensusResult
}

// Select implements Selector with deterministic weighted voting.
func (s *Scorer) Select(_ context.Context, field model.FieldName, candidates []model.Candidate) model.ConsensusResult {
	return s.Score(field, candidates)
}

var _ Selector = (*Scorer)(nil)
