package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/resilience"
	"github.com/sells-group/provider-reconcile/pkg/anthropic"
)

// ErrMalformedResponse is returned when the reasoning service replies with
// something that is not a usable selection.
var ErrMalformedResponse = eris.New("consensus: malformed reasoning response")

const selectSystemPrompt = `You reconcile medical provider directory records.
You receive candidate values for one field, each with its source and trust weight.
Treat values that differ only in formatting (punctuation, spacing, abbreviations) as the same value.
Pick exactly one candidate value and copy it verbatim.
Reply with JSON only: {"value": "<candidate value>", "confidence": <0..1>, "sources": ["<source>", ...]}
where sources lists every source that supports the chosen value.`

// AssistConfig configures the assisted selector.
type AssistConfig struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Assisted asks the reasoning service to select a value, merging
// near-duplicate candidates, and falls back to the deterministic scorer on
// any failure.
type Assisted struct {
	client   anthropic.Client
	fallback *Scorer
	breaker  *resilience.Breaker
	metrics  *metrics.Metrics
	cfg      AssistConfig
}

// AssistOption customizes an Assisted selector.
type AssistOption func(*Assisted)

// WithBreaker guards reasoning calls with b.
func WithBreaker(b *resilience.Breaker) AssistOption {
	return func(a *Assisted) { a.breaker = b }
}

// WithMetrics records fallbacks on m.
func WithMetrics(m *metrics.Metrics) AssistOption {
	return func(a *Assisted) { a.metrics = m }
}

// NewAssisted creates an assisted selector.
func NewAssisted(client anthropic.Client, fallback *Scorer, cfg AssistConfig, opts ...AssistOption) *Assisted {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if fallback == nil {
		fallback = NewScorer(nil)
	}
	a := &Assisted{client: client, fallback: fallback, cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Select implements Selector.
func (a *Assisted) Select(ctx context.Context, field model.FieldName, candidates []model.Candidate) model.ConsensusResult {
	if distinctValues(candidates) < 2 {
		return a.fallback.Score(field, candidates)
	}

	res, err := a.ask(ctx, field, candidates)
	if err != nil {
		reason := FallbackReason(err)
		a.metrics.IncAssistFallback("select", reason)
		if reason != "quota" {
			zap.L().Warn("consensus: assisted selection failed, using deterministic scorer",
				zap.String("field", string(field)),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
		return a.fallback.Score(field, candidates)
	}
	return res
}

func (a *Assisted) ask(ctx context.Context, field model.FieldName, candidates []model.Candidate) (model.ConsensusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	prompt, err := a.prompt(field, candidates)
	if err != nil {
		return model.ConsensusResult{}, err
	}

	temp := 0.0
	resp, err := resilience.Call(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       a.cfg.Model,
			MaxTokens:   a.cfg.MaxTokens,
			System:      anthropic.CachedSystem(selectSystemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return model.ConsensusResult{}, err
	}
	resp.Usage.LogCost(a.cfg.Model, "select")

	return parseSelection(field, resp.Text(), candidates)
}

type promptCandidate struct {
	Value  string  `json:"value"`
	Source string  `json:"source"`
	Weight float64 `json:"weight"`
}

func (a *Assisted) prompt(field model.FieldName, candidates []model.Candidate) (string, error) {
	pcs := make([]promptCandidate, len(candidates))
	for i, c := range candidates {
		pcs[i] = promptCandidate{Value: c.Value, Source: string(c.Source), Weight: a.fallback.Policy().Weight(c.Source)}
	}
	body, err := json.Marshal(pcs)
	if err != nil {
		return "", eris.Wrap(err, "consensus: encode candidates")
	}
	return fmt.Sprintf("Field: %s\nCandidates: %s", field, body), nil
}

type selection struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence"`
	Sources    []string `json:"sources"`
}

// parseSelection validates a reply. The chosen value must be one of the
// candidate values, and the confidence must lie in [0,1].
func parseSelection(field model.FieldName, text string, candidates []model.Candidate) (model.ConsensusResult, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.ConsensusResult{}, eris.Wrap(ErrMalformedResponse, "no json object")
	}

	var sel selection
	if err := json.Unmarshal([]byte(text[start:end+1]), &sel); err != nil {
		return model.ConsensusResult{}, eris.Wrapf(ErrMalformedResponse, "decode: %v", err)
	}
	if sel.Confidence == nil || *sel.Confidence < 0 || *sel.Confidence > 1 {
		return model.ConsensusResult{}, eris.Wrap(ErrMalformedResponse, "confidence out of range")
	}

	chosen, ok := "", false
	for _, c := range candidates {
		if strings.TrimSpace(c.Value) == strings.TrimSpace(sel.Value) {
			chosen, ok = c.Value, true
			break
		}
	}
	if !ok {
		return model.ConsensusResult{}, eris.Wrapf(ErrMalformedResponse, "value %q is not a candidate", sel.Value)
	}

	offered := make(map[model.SourceID]bool, len(candidates))
	for _, c := range candidates {
		offered[c.Source] = true
	}
	var sources []model.SourceID
	seen := make(map[model.SourceID]bool)
	for _, s := range sel.Sources {
		id := model.ParseSourceID(s)
		if offered[id] && !seen[id] {
			seen[id] = true
			sources = append(sources, id)
		}
	}
	if len(sources) == 0 {
		for _, c := range candidates {
			if c.Value == chosen && !seen[c.Source] {
				seen[c.Source] = true
				sources = append(sources, c.Source)
			}
		}
	}

	return model.ConsensusResult{
		Field:      field,
		Best:       chosen,
		Confidence: *sel.Confidence,
		Sources:    sources,
	}, nil
}

// FallbackReason classifies an assisted-path failure for logs and metrics.
func FallbackReason(err error) string {
	switch {
	case anthropic.IsQuotaExceeded(err):
		return "quota"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}

func distinctValues(candidates []model.Candidate) int {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.Value] = struct{}{}
	}
	return len(seen)
}

var _ Selector = (*Assisted)(nil)
