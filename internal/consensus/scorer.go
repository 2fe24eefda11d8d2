// Package consensus turns per-source candidates into a single winning value
// per field using fixed source trust weights.
package consensus

import (
	"math"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// group accumulates the distinct sources that agree on one literal value.
type group struct {
	value   string
	sources []model.SourceID
	seen    map[model.SourceID]bool
	score   float64
}

// Scorer is the deterministic weighted-voting scorer.
type Scorer struct {
	policy *Policy
}

// NewScorer returns a Scorer using policy, or DefaultPolicy when nil.
func NewScorer(policy *Policy) *Scorer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Scorer{policy: policy}
}

// Policy returns the scorer's trust table.
func (s *Scorer) Policy() *Policy { return s.policy }

// Score selects the value with the strictly highest summed trust weight.
// Ties go to the group seen first. Each source counts at most once per value.
// Confidence is the winning score over the sum of the k highest table weights,
// where k is the number of sources in the winning group, capped at 1.
func (s *Scorer) Score(field model.FieldName, candidates []model.Candidate) model.ConsensusResult {
	res := model.ConsensusResult{Field: field, Sources: []model.SourceID{}}
	if len(candidates) == 0 {
		return res
	}

	var groups []*group
	byValue := make(map[string]*group)
	for _, c := range candidates {
		g, ok := byValue[c.Value]
		if !ok {
			g = &group{value: c.Value, seen: make(map[model.SourceID]bool)}
			byValue[c.Value] = g
			groups = append(groups, g)
		}
		if g.seen[c.Source] {
			continue
		}
		g.seen[c.Source] = true
		g.sources = append(g.sources, c.Source)
		g.score += s.policy.Weight(c.Source)
	}

	best := groups[0]
	for _, g := range groups[1:] {
		if g.score > best.score {
			best = g
		}
	}

	res.Best = best.value
	res.Sources = best.sources
	res.Confidence = clamp01(best.score / s.policy.MaxPossible(len(best.sources)))
	return res
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
