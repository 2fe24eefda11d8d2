package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
)

type stubAdapter struct {
	source model.SourceID
	rec    Record
	err    error
	delay  time.Duration
	panics bool
}

func (s *stubAdapter) Source() model.SourceID { return s.source }

func (s *stubAdapter) Fetch(ctx context.Context, _ *model.Provider) (Record, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.rec, s.err
}

func testProvider() *model.Provider {
	return &model.Provider{ID: 1, ExternalID: "1234567893", Name: "Dr. Ada"}
}

func TestCollect_KeepsAdapterOrder(t *testing.T) {
	t.Parallel()

	c := NewCollector([]Adapter{
		&stubAdapter{source: model.SourceRegistry, rec: Record{model.FieldPhone: "1"}, delay: 20 * time.Millisecond},
		&stubAdapter{source: model.SourceStateBoard, rec: Record{model.FieldPhone: "2"}},
		&stubAdapter{source: model.SourceHospital, rec: Record{model.FieldPhone: "3"}, delay: 5 * time.Millisecond},
	})

	got := c.Collect(context.Background(), testProvider())

	require.Len(t, got, 3)
	assert.Equal(t, model.SourceRegistry, got[0].Source)
	assert.Equal(t, "1", got[0].Values[model.FieldPhone])
	assert.Equal(t, model.SourceStateBoard, got[1].Source)
	assert.Equal(t, model.SourceHospital, got[2].Source)
	assert.Equal(t, "3", got[2].Values[model.FieldPhone])
}

func TestCollect_FailSoft(t *testing.T) {
	t.Parallel()

	c := NewCollector([]Adapter{
		&stubAdapter{source: model.SourceRegistry, err: errors.New("connection refused")},
		&stubAdapter{source: model.SourceStateBoard, panics: true},
		&stubAdapter{source: model.SourceMaps, rec: Record{model.FieldAddress: "1 Main St"}},
	})

	got := c.Collect(context.Background(), testProvider())

	require.Len(t, got, 3)
	assert.Empty(t, got[0].Values)
	assert.Empty(t, got[1].Values)
	assert.Equal(t, "1 Main St", got[2].Values[model.FieldAddress])
}

func TestCollect_TimeoutYieldsEmptyPayload(t *testing.T) {
	t.Parallel()

	c := NewCollector([]Adapter{
		&stubAdapter{source: model.SourceRegistry, rec: Record{model.FieldPhone: "1"}, delay: time.Second},
		&stubAdapter{source: model.SourceMaps, rec: Record{model.FieldPhone: "2"}},
	}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := c.Collect(context.Background(), testProvider())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, got[0].Values)
	assert.Equal(t, "2", got[1].Values[model.FieldPhone])
}

func TestCollect_RecordsMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	c := NewCollector([]Adapter{
		&stubAdapter{source: model.SourceRegistry, err: errors.New("down")},
		&stubAdapter{source: model.SourceMaps, rec: Record{model.FieldPhone: "2"}},
		&stubAdapter{source: model.SourceHospital},
	}, WithMetrics(m))

	c.Collect(context.Background(), testProvider())

	assert.Equal(t, 3, testutil.CollectAndCount(m.SourceFetch))
}
