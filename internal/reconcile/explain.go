package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/consensus"
	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/resilience"
	"github.com/sells-group/provider-reconcile/pkg/anthropic"
)

// ExplainRequest describes a decision to be explained.
type ExplainRequest struct {
	Field        string            `json:"field"`
	CurrentValue string            `json:"current_value"`
	ChosenValue  string            `json:"chosen_value"`
	Confidence   float64           `json:"confidence"`
	Decision     string            `json:"decision"`
	Candidates   []model.Candidate `json:"candidates"`
}

// Explainer renders a human-readable rationale for a field decision.
type Explainer interface {
	Explain(ctx context.Context, req ExplainRequest) string
}

// Template is the deterministic Explainer.
type Template struct{}

// Explain implements Explainer.
func (Template) Explain(_ context.Context, req ExplainRequest) string {
	return fmt.Sprintf("Decision for %s: chose %s with confidence %.2f from sources %s.",
		req.Field, req.ChosenValue, req.Confidence, formatSources(req))
}

// formatSources lists the sources backing the chosen value, or every
// candidate source when none match it.
func formatSources(req ExplainRequest) string {
	var backing, all []string
	seen := map[model.SourceID]bool{}
	seenAll := map[model.SourceID]bool{}
	for _, c := range req.Candidates {
		if !seenAll[c.Source] {
			seenAll[c.Source] = true
			all = append(all, string(c.Source))
		}
		if c.Value == req.ChosenValue && !seen[c.Source] {
			seen[c.Source] = true
			backing = append(backing, string(c.Source))
		}
	}
	if len(backing) == 0 {
		backing = all
	}
	return "[" + strings.Join(backing, ", ") + "]"
}

const explainSystemPrompt = `You are a healthcare data quality analyst reviewing provider directory updates.
Summarize the reasoning behind a data decision in at most three sentences:
why the value was chosen, how source agreement influenced confidence, and whether the decision is safe to auto-apply.
Be concise and professional. Reply with plain text only.`

// AssistedExplainer asks the reasoning service for an explanation and falls
// back to Template on any failure.
type AssistedExplainer struct {
	client   anthropic.Client
	breaker  *resilience.Breaker
	metrics  *metrics.Metrics
	model    string
	maxToken int64
	timeout  time.Duration
	fallback Template
}

// NewAssistedExplainer creates an AssistedExplainer. b and m may be nil.
func NewAssistedExplainer(client anthropic.Client, cfg consensus.AssistConfig, b *resilience.Breaker, m *metrics.Metrics) *AssistedExplainer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AssistedExplainer{
		client:   client,
		breaker:  b,
		metrics:  m,
		model:    cfg.Model,
		maxToken: cfg.MaxTokens,
		timeout:  cfg.Timeout,
	}
}

// Explain implements Explainer.
func (a *AssistedExplainer) Explain(ctx context.Context, req ExplainRequest) string {
	text, err := a.ask(ctx, req)
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	if err == nil {
		err = consensus.ErrMalformedResponse
	}

	reason := consensus.FallbackReason(err)
	a.metrics.IncAssistFallback("explain", reason)
	if reason == "quota" {
		zap.L().Debug("reconcile: explanation quota exhausted, using template", zap.String("field", req.Field))
	} else {
		zap.L().Warn("reconcile: assisted explanation failed, using template",
			zap.String("field", req.Field),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	return a.fallback.Explain(ctx, req)
}

func (a *AssistedExplainer) ask(ctx context.Context, req ExplainRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cands, err := json.Marshal(req.Candidates)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("Field: %s\nCurrent value: %s\nCandidate values: %s\nChosen value: %s\nConfidence score: %.2f\nDecision: %s",
		req.Field, req.CurrentValue, cands, req.ChosenValue, req.Confidence, req.Decision)

	resp, err := resilience.Call(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.model,
			MaxTokens: a.maxToken,
			System:    anthropic.CachedSystem(explainSystemPrompt),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.model, "explain")
	return resp.Text(), nil
}

var (
	_ Explainer = Template{}
	_ Explainer = (*AssistedExplainer)(nil)
)
