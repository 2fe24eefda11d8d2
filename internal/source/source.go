// Package source fetches per-source field payloads for a provider.
package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-reconcile/internal/consensus"
	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
)

// Record is one source's normalized view of a provider. Fields the source
// does not know are absent.
type Record map[model.FieldName]string

// Adapter looks a provider up in one external source.
type Adapter interface {
	// Source identifies the adapter's candidates.
	Source() model.SourceID
	// Fetch returns the source's record for p. A missing provider is an
	// empty record, not an error.
	Fetch(ctx context.Context, p *model.Provider) (Record, error)
}

// DefaultTimeout bounds a single adapter lookup.
const DefaultTimeout = 5 * time.Second

// Collector runs every adapter for a provider.
type Collector struct {
	adapters []Adapter
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithTimeout sets the per-adapter lookup timeout.
func WithTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records fetch latency per source.
func WithMetrics(m *metrics.Metrics) CollectorOption {
	return func(c *Collector) {
		c.metrics = m
	}
}

// NewCollector creates a Collector over adapters, which are queried in
// parallel but reported in the order given.
func NewCollector(adapters []Adapter, opts ...CollectorOption) *Collector {
	c := &Collector{adapters: adapters, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Adapters returns the configured adapters in query order.
func (c *Collector) Adapters() []Adapter { return c.adapters }

// Collect fetches every source for p. A failing or slow source contributes
// an empty payload and never fails the collection.
func (c *Collector) Collect(ctx context.Context, p *model.Provider) []consensus.Payload {
	payloads := make([]consensus.Payload, len(c.adapters))

	var g errgroup.Group
	for i, a := range c.adapters {
		payloads[i] = consensus.Payload{Source: a.Source()}
		g.Go(func() error {
			payloads[i].Values = c.fetch(ctx, a, p)
			return nil
		})
	}
	_ = g.Wait()

	return payloads
}

func (c *Collector) fetch(ctx context.Context, a Adapter, p *model.Provider) Record {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	rec, err := safeFetch(ctx, a, p)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		c.metrics.ObserveSourceFetch(string(a.Source()), "error", elapsed)
		zap.L().Warn("source: fetch failed",
			zap.String("source", string(a.Source())),
			zap.Int64("provider_id", p.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Record{}
	case len(rec) == 0:
		c.metrics.ObserveSourceFetch(string(a.Source()), "empty", elapsed)
		return Record{}
	default:
		c.metrics.ObserveSourceFetch(string(a.Source()), "ok", elapsed)
		return rec
	}
}

// safeFetch turns an adapter panic into an error so one bad source cannot
// take down the provider step.
func safeFetch(ctx context.Context, a Adapter, p *model.Provider) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = &panicError{value: r}
		}
	}()
	return a.Fetch(ctx, p)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "source: adapter panicked: " + formatPanic(e.value) }

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}
