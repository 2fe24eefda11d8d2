package report

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
)

type fakeStore struct {
	providers   []model.ProviderSummary
	reviews     []model.ManualReviewItem
	reviewQuery store.ReviewFilter
	pages       int
	err         error
}

func (f *fakeStore) ListProviderSummaries(_ context.Context, filter store.ProviderFilter) ([]model.ProviderSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pages++
	if filter.Offset >= len(f.providers) {
		return nil, nil
	}
	end := min(filter.Offset+filter.Limit, len(f.providers))
	return f.providers[filter.Offset:end], nil
}

func (f *fakeStore) ListReviewItems(_ context.Context, filter store.ReviewFilter) ([]model.ManualReviewItem, error) {
	f.reviewQuery = filter
	return f.reviews, nil
}

func ptr[T any](v T) *T { return &v }

func TestExport_WritesBothSheets(t *testing.T) {
	st := &fakeStore{
		providers: []model.ProviderSummary{
			{ID: 1, ExternalID: "P1", Name: "Dr. One", PCS: ptr(87.5), Band: "amber", DriftScore: ptr(0.25), DriftBucket: "Low", NextCheck: ptr(30)},
			{ID: 2, ExternalID: "P2", Name: "Dr. Two"},
		},
		reviews: []model.ManualReviewItem{
			{ID: 7, ProviderID: 1, FieldName: model.FieldAddress, CurrentValue: "1 Main St", SuggestedValue: "2 Oak Ave",
				Reason: "low confidence (0.50)", Status: model.ReviewPending, CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		},
	}
	path := filepath.Join(t.TempDir(), "scores.xlsx")

	sum, err := Export(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, Summary{Providers: 2, Reviews: 1}, sum)
	assert.Equal(t, model.ReviewPending, st.reviewQuery.Status)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	providers := f.Sheet[ProvidersSheet]
	require.NotNil(t, providers)
	require.Len(t, providers.Rows, 3)
	assert.Equal(t, "External ID", providers.Rows[0].Cells[1].String())
	assert.Equal(t, "P1", providers.Rows[1].Cells[1].String())
	pcs, err := providers.Rows[1].Cells[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 87.5, pcs, 1e-9)
	assert.Equal(t, "Low", providers.Rows[1].Cells[6].String())
	next, err := providers.Rows[1].Cells[7].Int()
	require.NoError(t, err)
	assert.Equal(t, 30, next)
	assert.Empty(t, providers.Rows[2].Cells[3].String())

	review := f.Sheet[ReviewSheet]
	require.NotNil(t, review)
	require.Len(t, review.Rows, 2)
	assert.Equal(t, "Suggested Value", review.Rows[0].Cells[4].String())
	assert.Equal(t, "address", review.Rows[1].Cells[2].String())
	assert.Equal(t, "2 Oak Ave", review.Rows[1].Cells[4].String())
}

func TestBuild_PagesThroughProviders(t *testing.T) {
	st := &fakeStore{}
	for i := 1; i <= pageSize+3; i++ {
		st.providers = append(st.providers, model.ProviderSummary{ID: int64(i), ExternalID: "P", Name: "x"})
	}

	f, sum, err := Build(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, pageSize+3, sum.Providers)
	assert.Equal(t, 2, st.pages)
	assert.Len(t, f.Sheet[ProvidersSheet].Rows, pageSize+4)
}

func TestBuild_StoreError(t *testing.T) {
	_, _, err := Build(context.Background(), &fakeStore{err: errors.New("db down")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report: list providers")
}
