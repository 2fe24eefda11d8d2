package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-reconcile/internal/consensus"
	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/ocr"
	"github.com/sells-group/provider-reconcile/internal/source"
	"github.com/sells-group/provider-reconcile/internal/store"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var externalIDs = []string{"P1", "P2", "P3", "P4", "P5"}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedProviders(t *testing.T, st store.Store) []*model.Provider {
	t.Helper()
	var out []*model.Provider
	for _, ext := range externalIDs {
		p := &model.Provider{
			ExternalID:    ext,
			Name:          "Dr. " + ext,
			Phone:         "123",
			Address:       "1 Main St",
			Specialty:     "Cardiology",
			LicenseNo:     "L-" + ext,
			LicenseExpiry: "2030-01-01",
		}
		require.NoError(t, st.CreateProvider(context.Background(), p))
		out = append(out, p)
	}
	return out
}

// testFixtures gives every provider an agreeing registry and hospital phone,
// and P1 a lone maps address that needs review.
func testFixtures() *source.Fixtures {
	registry := map[string]source.Record{}
	hospital := map[string]source.Record{}
	for _, ext := range externalIDs {
		registry[ext] = source.Record{model.FieldPhone: "456"}
		hospital[ext] = source.Record{model.FieldPhone: "456"}
	}
	return source.NewFixtures(map[model.SourceID]map[string]source.Record{
		model.SourceRegistry: registry,
		model.SourceHospital: hospital,
		model.SourceMaps:     {"P1": {model.FieldAddress: "2 Oak Ave"}},
	})
}

// panicCollector wraps a collector and panics for one provider, outside the
// adapters' own recovery.
type panicCollector struct {
	inner      Collector
	externalID string
}

func (c panicCollector) Collect(ctx context.Context, p *model.Provider) []consensus.Payload {
	if p.ExternalID == c.externalID {
		panic("source table corrupted")
	}
	return c.inner.Collect(ctx, p)
}

func newTestCollector(f *source.Fixtures) *source.Collector {
	return source.NewCollector([]source.Adapter{
		source.NewRegistry(f),
		source.NewDirectory(model.SourceStateBoard, f),
		source.NewDirectory(model.SourceHospital, f),
		source.NewDirectory(model.SourceMaps, f),
	})
}

func newTestEngine(st store.Store, c Collector, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(st, c, nil, opts...)
}

func TestRunBatch_ProviderFailureIsIsolated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	providers := seedProviders(t, st)
	m := metrics.New(prometheus.NewRegistry())

	e := newTestEngine(st, panicCollector{inner: newTestCollector(testFixtures()), externalID: "P3"}, WithMetrics(m))

	run, err := e.RunBatch(ctx, model.RunTypeDaily, 5)
	require.NoError(t, err)

	assert.Equal(t, 4, run.CountProcessed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 4, run.AutoUpdates)
	assert.Equal(t, 1, run.ManualReviews)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Error)

	stored, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.CountProcessed)
	assert.Equal(t, model.RunTypeDaily, stored.Type)
	require.NotNil(t, stored.FinishedAt)

	// No partial writes for the failed provider.
	failed := providers[2]
	rows, err := st.ListFieldConfidence(ctx, failed.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	got, err := st.GetProvider(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "123", got.Phone)
	assert.Nil(t, got.LastChangedAt)

	// Completed providers were updated and audited.
	got, err = st.GetProvider(ctx, providers[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "456", got.Phone)
	require.NotNil(t, got.LastVerifiedAt)
	assert.True(t, got.LastVerifiedAt.Equal(testNow))
	rows, err = st.ListFieldConfidence(ctx, providers[0].ID)
	require.NoError(t, err)
	assert.Len(t, rows, len(model.Fields()))

	// Scores cover every provider, including the one that failed.
	for _, p := range providers {
		score, drift, err := st.GetScores(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, score, "provider %d", p.ID)
		require.NotNil(t, drift, "provider %d", p.ID)
	}

	assert.InDelta(t, 4, testutil.ToFloat64(m.Providers.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Providers.WithLabelValues("failed")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.Decisions.WithLabelValues("phone", "auto_update")), 0)
}

func TestRunBatch_RespectsLimitAndStaleOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	providers := seedProviders(t, st)

	e := newTestEngine(st, newTestCollector(testFixtures()))

	run, err := e.RunBatch(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, model.RunTypeDaily, run.Type)
	assert.Equal(t, 2, run.CountProcessed)

	// The first two never-verified providers were processed.
	for i, p := range providers {
		got, err := st.GetProvider(ctx, p.ID)
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, "456", got.Phone)
		} else {
			assert.Equal(t, "123", got.Phone)
		}
	}

	// The next pass picks up the remaining never-verified providers first.
	run, err = e.RunBatch(ctx, model.RunTypeWeekly, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, run.CountProcessed)
	assert.Equal(t, 3, run.AutoUpdates)
}

func TestRunBatch_FinalizesOnFatalError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedProviders(t, st)

	e := newTestEngine(failingListStore{SQLiteStore: st}, newTestCollector(testFixtures()))

	run, err := e.RunBatch(ctx, model.RunTypeOnboarding, 5)
	require.Error(t, err)
	require.NotNil(t, run)

	stored, gerr := st.GetRun(ctx, run.ID)
	require.NoError(t, gerr)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
	assert.Contains(t, stored.Error, "select providers")
	assert.Equal(t, 0, stored.CountProcessed)
}

type failingListStore struct {
	*store.SQLiteStore
}

func (failingListStore) ListStaleProviders(context.Context, int) ([]model.Provider, error) {
	return nil, os.ErrDeadlineExceeded
}

func TestReconcile_SingleProvider(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	providers := seedProviders(t, st)

	e := newTestEngine(st, newTestCollector(testFixtures()))

	rec, err := e.Reconcile(ctx, providers[0].ID)
	require.NoError(t, err)
	require.Len(t, rec.Fields, len(model.Fields()))

	byField := map[model.FieldName]model.FieldOutcome{}
	for _, f := range rec.Fields {
		byField[f.Decision.Field] = f
	}
	phone := byField[model.FieldPhone]
	assert.Equal(t, model.DecisionAutoUpdate, phone.Decision.Kind)
	assert.Equal(t, "456", phone.Decision.To)
	assert.InDelta(t, 1.7/1.9, phone.Consensus.Confidence, 1e-9)
	assert.Equal(t, []model.SourceID{model.SourceRegistry, model.SourceHospital}, phone.Consensus.Sources)

	addr := byField[model.FieldAddress]
	assert.Equal(t, model.DecisionManualReview, addr.Decision.Kind)
	assert.Equal(t, "low confidence (0.50)", addr.Decision.Reason)

	assert.Equal(t, model.DecisionNoOp, byField[model.FieldSpecialty].Decision.Kind)

	items, err := st.ListReviewItems(ctx, store.ReviewFilter{ProviderID: providers[0].ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2 Oak Ave", items[0].SuggestedValue)

	audit, err := st.ListAudit(ctx, providers[0].ID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, model.AuditAutoUpdate, audit[0].Action)

	score, _, err := st.GetScores(ctx, providers[0].ID)
	require.NoError(t, err)
	require.NotNil(t, score)
}

func TestReconcile_UnknownProvider(t *testing.T) {
	st := newTestStore(t)
	e := newTestEngine(st, newTestCollector(testFixtures()))

	_, err := e.Reconcile(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestReconcile_ReadsLicenseDocuments(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	providers := seedProviders(t, st)

	dir := t.TempDir()
	present := filepath.Join(dir, "P1.png")
	require.NoError(t, os.WriteFile(present, []byte("png"), 0o644))

	docs := []*model.Document{
		{ProviderID: providers[0].ID, DocType: model.DocTypeLicense, Path: present},
		{ProviderID: providers[0].ID, DocType: model.DocTypeLicense, Path: filepath.Join(dir, "missing.png")},
	}
	for _, d := range docs {
		require.NoError(t, st.AddDocument(ctx, d))
	}

	extractor := ocr.NewFailSoft(stubOCR{}, 0.7)
	e := newTestEngine(st, newTestCollector(testFixtures()), WithOCR(extractor))

	rec, err := e.Reconcile(ctx, providers[0].ID)
	require.NoError(t, err)
	require.Len(t, rec.Documents, 1)
	assert.Equal(t, docs[0].ID, rec.Documents[0].DocumentID)

	stored, err := st.ListDocuments(ctx, providers[0].ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, d := range stored {
		if d.ID == docs[0].ID {
			assert.Equal(t, ocr.UnavailableText, d.OCRText)
			require.NotNil(t, d.OCRConfidence)
			assert.InDelta(t, 0.7, *d.OCRConfidence, 1e-9)
		} else {
			assert.Nil(t, d.OCRConfidence)
		}
	}
}

type stubOCR struct{}

func (stubOCR) Extract(context.Context, string) (ocr.Result, error) {
	return ocr.Result{}, os.ErrNotExist
}

func TestSummary(t *testing.T) {
	s := Summary(&model.Run{ID: "r1", Type: model.RunTypeDaily, CountProcessed: 4, AutoUpdates: 3, ManualReviews: 1, Failed: 1})
	assert.Equal(t, "run r1 (daily): processed=4 auto_updates=3 manual_reviews=1 failed=1", s)
}
