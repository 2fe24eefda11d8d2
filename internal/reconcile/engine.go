// Package reconcile runs source collection, consensus and the decision gate
// for providers, single or in batches, and applies human review decisions.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/consensus"
	"github.com/sells-group/provider-reconcile/internal/decision"
	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/ocr"
	"github.com/sells-group/provider-reconcile/internal/quality"
	"github.com/sells-group/provider-reconcile/internal/store"
)

// DefaultBatchLimit caps a batch when the caller gives no limit.
const DefaultBatchLimit = 200

// Collector fetches every source payload for a provider.
type Collector interface {
	Collect(ctx context.Context, p *model.Provider) []consensus.Payload
}

// Engine reconciles providers against their sources.
type Engine struct {
	store      store.Store
	collector  Collector
	selector   consensus.Selector
	threshold  float64
	batchLimit int
	ocr        ocr.Extractor
	scores     *quality.Computer
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the auto-update confidence threshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithBatchLimit sets the provider cap used when RunBatch gets no limit.
func WithBatchLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchLimit = n
		}
	}
}

// WithOCR reads each provider's license documents during reconciliation.
func WithOCR(x ocr.Extractor) Option {
	return func(e *Engine) { e.ocr = x }
}

// WithMetrics records decisions, provider outcomes and run durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. A nil selector uses the deterministic scorer with
// the default policy.
func New(st store.Store, collector Collector, selector consensus.Selector, opts ...Option) *Engine {
	if selector == nil {
		selector = consensus.NewScorer(nil)
	}
	e := &Engine{
		store:      st,
		collector:  collector,
		selector:   selector,
		threshold:  consensus.DefaultThreshold,
		batchLimit: DefaultBatchLimit,
		tracer:     otel.Tracer("github.com/sells-group/provider-reconcile/internal/reconcile"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scores = quality.NewComputer(st).WithClock(e.now)
	return e
}

// Scores returns the score computer bound to the engine's store and clock.
func (e *Engine) Scores() *quality.Computer { return e.scores }

// Reconcile runs one provider through collection, consensus and the gate,
// commits the outcome and refreshes the provider's scores.
func (e *Engine) Reconcile(ctx context.Context, providerID int64) (*model.Reconciliation, error) {
	p, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: load provider %d", providerID)
	}

	rec, err := e.reconcileProvider(ctx, p)
	if err != nil {
		return nil, err
	}

	if _, _, err := e.scores.Compute(ctx, providerID); err != nil {
		zap.L().Warn("reconcile: score refresh failed", zap.Int64("provider_id", providerID), zap.Error(err))
	}
	return rec, nil
}

// reconcileProvider is the per-provider unit of work. Everything it writes
// goes through one CommitReconciliation call, so a failure leaves nothing
// behind. Panics are converted to errors.
func (e *Engine) reconcileProvider(ctx context.Context, p *model.Provider) (rec *model.Reconciliation, err error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.provider",
		trace.WithAttributes(attribute.Int64("provider.id", p.ID), attribute.String("provider.external_id", p.ExternalID)))
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, eris.Errorf("reconcile: provider %d panicked: %v", p.ID, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payloads := e.collector.Collect(ctx, p)
	candidates := consensus.Aggregate(p, payloads)

	rec = &model.Reconciliation{
		ProviderID: p.ID,
		Actor:      model.ActorSystem,
		At:         e.now().UTC(),
	}
	for _, f := range model.Fields() {
		res := e.selector.Select(ctx, f.Name, candidates[f.Name])
		res.Field = f.Name
		rec.Fields = append(rec.Fields, model.FieldOutcome{
			Consensus: res,
			Decision:  decision.Decide(f.Name, f.Get(p), res, e.threshold),
		})
	}

	docs, err := e.readDocuments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	rec.Documents = docs

	if err := e.store.CommitReconciliation(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "reconcile: commit provider %d", p.ID)
	}

	for _, f := range rec.Fields {
		e.metrics.IncDecision(string(f.Decision.Field), string(f.Decision.Kind))
	}
	span.SetAttributes(
		attribute.Int("reconcile.auto_updates", rec.Count(model.DecisionAutoUpdate)),
		attribute.Int("reconcile.manual_reviews", rec.Count(model.DecisionManualReview)),
	)
	return rec, nil
}

// readDocuments OCRs the provider's license documents whose files exist.
func (e *Engine) readDocuments(ctx context.Context, providerID int64) ([]model.DocumentOCR, error) {
	if e.ocr == nil {
		return nil, nil
	}
	docs, err := e.store.ListDocuments(ctx, providerID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: list documents for %d", providerID)
	}

	var out []model.DocumentOCR
	for _, d := range docs {
		if d.DocType != model.DocTypeLicense || d.Path == "" {
			continue
		}
		if _, err := os.Stat(d.Path); err != nil {
			zap.L().Debug("reconcile: skipping missing document", zap.Int64("document_id", d.ID), zap.String("path", d.Path))
			continue
		}
		res, err := e.ocr.Extract(ctx, d.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "reconcile: ocr document %d", d.ID)
		}
		out = append(out, model.DocumentOCR{DocumentID: d.ID, Text: res.Text, Confidence: res.Confidence})
	}
	return out, nil
}

// RunBatch reconciles up to limit providers, least recently verified first,
// then recomputes scores for every provider. A failing provider is rolled
// back and skipped. The run record is finalized even when the batch itself
// fails or panics.
func (e *Engine) RunBatch(ctx context.Context, runType model.RunType, limit int) (run *model.Run, err error) {
	if runType == "" {
		runType = model.RunTypeDaily
	}
	if limit <= 0 {
		limit = e.batchLimit
	}

	run = &model.Run{
		Type:      runType,
		Status:    model.RunStatusPending,
		Limit:     limit,
		StartedAt: e.now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "reconcile: create run")
	}

	ctx, span := e.tracer.Start(ctx, "reconcile.batch",
		trace.WithAttributes(attribute.String("run.id", run.ID), attribute.String("run.type", string(runType)), attribute.Int("run.limit", limit)))

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("run_type", string(runType)))
	log.Info("reconcile: batch started", zap.Int("limit", limit))

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("reconcile: batch panicked: %v", r)
		}
		e.finalize(context.WithoutCancel(ctx), run, err, log)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("run.count_processed", run.CountProcessed),
			attribute.Int("run.failed", run.Failed),
		)
		span.End()
	}()

	if err := e.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		log.Warn("reconcile: failed to update run status", zap.Error(err))
	}
	run.Status = model.RunStatusRunning

	providers, err := e.store.ListStaleProviders(ctx, limit)
	if err != nil {
		return run, eris.Wrap(err, "reconcile: select providers")
	}

	for i := range providers {
		p := &providers[i]
		rec, perr := e.reconcileProvider(ctx, p)
		if perr != nil {
			run.Failed++
			e.metrics.IncProvider("failed")
			log.Error("reconcile: provider failed, skipping",
				zap.Int64("provider_id", p.ID),
				zap.Error(perr),
			)
			continue
		}
		run.CountProcessed++
		run.AutoUpdates += rec.Count(model.DecisionAutoUpdate)
		run.ManualReviews += rec.Count(model.DecisionManualReview)
		e.metrics.IncProvider("ok")
	}

	if _, serr := e.scores.ComputeAll(ctx); serr != nil {
		log.Warn("reconcile: score recomputation incomplete", zap.Error(serr))
	}
	return run, nil
}

func (e *Engine) finalize(ctx context.Context, run *model.Run, runErr error, log *zap.Logger) {
	finished := e.now().UTC()
	run.Status = model.RunStatusCompleted
	run.FinishedAt = &finished
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := e.store.FinishRun(ctx, run); err != nil {
		log.Error("reconcile: failed to finalize run", zap.Error(err))
	}
	e.metrics.ObserveRun(run.Duration())

	fields := []zap.Field{
		zap.Int("count_processed", run.CountProcessed),
		zap.Int("auto_updates", run.AutoUpdates),
		zap.Int("manual_reviews", run.ManualReviews),
		zap.Int("failed", run.Failed),
		zap.Duration("duration", run.Duration()),
	}
	if runErr != nil {
		log.Error("reconcile: batch finished with error", append(fields, zap.Error(runErr))...)
		return
	}
	log.Info("reconcile: batch completed", fields...)
}

// Summary renders a one-line run summary for CLI output.
func Summary(r *model.Run) string {
	return fmt.Sprintf("run %s (%s): processed=%d auto_updates=%d manual_reviews=%d failed=%d",
		r.ID, r.Type, r.CountProcessed, r.AutoUpdates, r.ManualReviews, r.Failed)
}
