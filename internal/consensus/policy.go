package consensus

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// DefaultThreshold is the minimum confidence for an automatic update.
const DefaultThreshold = 0.75

// DefaultUnknownWeight is the trust weight of sources missing from the table.
const DefaultUnknownWeight = 0.2

// Policy holds the fixed trust weights and the auto-update threshold.
type Policy struct {
	Threshold     float64
	UnknownWeight float64
	Weights       map[model.SourceID]float64

	// ranked is the weight table sorted descending, for max-possible sums.
	ranked []float64
}

// DefaultPolicy returns the built-in trust table.
func DefaultPolicy() *Policy {
	return newPolicy(DefaultThreshold, DefaultUnknownWeight, map[model.SourceID]float64{
		model.SourceRegistry:   1.0,
		model.SourceStateBoard: 0.9,
		model.SourceHospital:   0.7,
		model.SourceMaps:       0.5,
		model.SourceOriginal:   0.3,
	})
}

func newPolicy(threshold, unknown float64, weights map[model.SourceID]float64) *Policy {
	p := &Policy{Threshold: threshold, UnknownWeight: unknown, Weights: weights}
	p.ranked = make([]float64, 0, len(weights))
	for _, w := range weights {
		p.ranked = append(p.ranked, w)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(p.ranked)))
	return p
}

// WithThreshold returns a copy of p using threshold t.
func (p *Policy) WithThreshold(t float64) *Policy {
	return newPolicy(t, p.UnknownWeight, p.Weights)
}

// Weight returns the trust weight of src.
func (p *Policy) Weight(src model.SourceID) float64 {
	if w, ok := p.Weights[src]; ok {
		return w
	}
	return p.UnknownWeight
}

// MaxPossible is the sum of the k highest table weights. It is 1.0 when the
// table is empty or k is not positive.
func (p *Policy) MaxPossible(k int) float64 {
	if k <= 0 || len(p.ranked) == 0 {
		return 1.0
	}
	if k > len(p.ranked) {
		k = len(p.ranked)
	}
	sum := 0.0
	for _, w := range p.ranked[:k] {
		sum += w
	}
	return sum
}

// Validate checks ranges. All problems are reported together.
func (p *Policy) Validate() error {
	var errs []string
	if p.Threshold <= 0 || p.Threshold > 1 {
		errs = append(errs, "threshold must be in (0, 1]")
	}
	if p.UnknownWeight < 0 {
		errs = append(errs, "unknown_weight must not be negative")
	}
	for src, w := range p.Weights {
		if w <= 0 {
			errs = append(errs, "weight for "+string(src)+" must be positive")
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("consensus: invalid policy: %v", errs)
	}
	return nil
}

// policyFile is the on-disk shape under a top-level "consensus" key.
type policyFile struct {
	Consensus struct {
		Threshold     *float64           `yaml:"threshold"`
		UnknownWeight *float64           `yaml:"unknown_weight"`
		Weights       map[string]float64 `yaml:"weights"`
	} `yaml:"consensus"`
}

// LoadPolicy reads a YAML policy file. Omitted settings keep their defaults
// and listed weights replace the built-in weight of that source.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "consensus: read policy %s", path)
	}

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "consensus: parse policy")
	}

	def := DefaultPolicy()
	threshold, unknown := def.Threshold, def.UnknownWeight
	if f.Consensus.Threshold != nil {
		threshold = *f.Consensus.Threshold
	}
	if f.Consensus.UnknownWeight != nil {
		unknown = *f.Consensus.UnknownWeight
	}
	weights := make(map[model.SourceID]float64, len(def.Weights))
	for src, w := range def.Weights {
		weights[src] = w
	}
	for name, w := range f.Consensus.Weights {
		weights[model.ParseSourceID(name)] = w
	}

	p := newPolicy(threshold, unknown, weights)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
