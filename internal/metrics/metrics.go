// Package metrics exposes Prometheus collectors for reconciliation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the reconciliation collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Source fetch latency by source and outcome (ok, empty, error).
	SourceFetch *prometheus.HistogramVec

	// Field decisions by field and kind.
	Decisions *prometheus.CounterVec

	// Providers finished per run outcome (ok, failed).
	Providers *prometheus.CounterVec

	// Batch run duration.
	RunDuration prometheus.Histogram

	// Reasoning-assist fallbacks by purpose and reason.
	AssistFallbacks *prometheus.CounterVec

	// Explain requests rejected by the per-client limiter.
	ExplainRejected prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceFetch: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconcile_source_fetch_duration_seconds",
			Help:    "Duration of source adapter lookups",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source", "outcome"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_field_decisions_total",
			Help: "Field decisions by field and kind",
		}, []string{"field", "kind"}),

		Providers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_providers_total",
			Help: "Providers processed by batch runs, by outcome",
		}, []string{"outcome"}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_run_duration_seconds",
			Help:    "Duration of batch validation runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		AssistFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_assist_fallbacks_total",
			Help: "Reasoning-assist calls that fell back to the deterministic path",
		}, []string{"purpose", "reason"}),

		ExplainRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_explain_rate_limited_total",
			Help: "Explain requests rejected by the per-client rate limit",
		}),
	}
}

// ObserveSourceFetch records one adapter lookup.
func (m *Metrics) ObserveSourceFetch(source, outcome string, d time.Duration) {
	if m != nil {
		m.SourceFetch.WithLabelValues(source, outcome).Observe(d.Seconds())
	}
}

// IncDecision records one field decision.
func (m *Metrics) IncDecision(field, kind string) {
	if m != nil {
		m.Decisions.WithLabelValues(field, kind).Inc()
	}
}

// IncProvider records a provider finishing a batch step.
func (m *Metrics) IncProvider(outcome string) {
	if m != nil {
		m.Providers.WithLabelValues(outcome).Inc()
	}
}

// ObserveRun records the duration of a finished run.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}

// IncAssistFallback records a fallback from the assisted path.
func (m *Metrics) IncAssistFallback(purpose, reason string) {
	if m != nil {
		m.AssistFallbacks.WithLabelValues(purpose, reason).Inc()
	}
}

// IncExplainRejected records a rate-limited explain request.
func (m *Metrics) IncExplainRejected() {
	if m != nil {
		m.ExplainRejected.Inc()
	}
}
