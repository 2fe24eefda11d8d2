package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
)

// setupReview reconciles P1 so a single pending address review exists.
func setupReview(t *testing.T) (*Engine, *store.SQLiteStore, *model.Provider, model.ManualReviewItem) {
	t.Helper()
	st := newTestStore(t)
	providers := seedProviders(t, st)
	e := newTestEngine(st, newTestCollector(testFixtures()))

	_, err := e.Reconcile(context.Background(), providers[0].ID)
	require.NoError(t, err)

	items, err := st.ListReviewItems(context.Background(), store.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	require.Len(t, items, 1)
	return e, st, providers[0], items[0]
}

func TestResolveReview_Approve(t *testing.T) {
	e, st, p, item := setupReview(t)
	ctx := context.Background()

	res, err := e.ResolveReview(ctx, item.ID, model.ReviewActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, res.Status)
	assert.True(t, res.Apply)
	assert.Equal(t, model.FieldAddress, res.Field)

	got, err := st.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "2 Oak Ave", got.Address)
	require.NotNil(t, got.LastChangedAt)
	assert.True(t, got.LastChangedAt.Equal(testNow))

	stored, err := st.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)

	audit, err := st.ListAudit(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	assert.Equal(t, model.AuditManualApprove, audit[0].Action)
	assert.Equal(t, "1 Main St", audit[0].OldValue)
	assert.Equal(t, "2 Oak Ave", audit[0].NewValue)
	assert.Equal(t, model.ActorHumanReviewer, audit[0].Actor)

	// A second decision on the same item is refused.
	_, err = e.ResolveReview(ctx, item.ID, model.ReviewActionReject, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAlreadyResolved))
}

func TestResolveReview_Override(t *testing.T) {
	e, st, p, item := setupReview(t)
	ctx := context.Background()

	res, err := e.ResolveReview(ctx, item.ID, model.ReviewActionOverride, "9 Elm Rd")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewOverridden, res.Status)

	got, err := st.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "9 Elm Rd", got.Address)

	audit, err := st.ListAudit(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditManualOverride, audit[0].Action)
	assert.Equal(t, "9 Elm Rd", audit[0].NewValue)
}

func TestResolveReview_OverrideRequiresValue(t *testing.T) {
	e, st, _, item := setupReview(t)

	_, err := e.ResolveReview(context.Background(), item.ID, model.ReviewActionOverride, "  ")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidAction))

	stored, err := st.GetReviewItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, stored.Status)
}

func TestResolveReview_RejectLeavesProvider(t *testing.T) {
	e, st, p, item := setupReview(t)
	ctx := context.Background()

	res, err := e.ResolveReview(ctx, item.ID, model.ReviewActionReject, "")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewRejected, res.Status)
	assert.False(t, res.Apply)

	got, err := st.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", got.Address)

	audit, err := st.ListAudit(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditManualReject, audit[0].Action)
	assert.Equal(t, "1 Main St", audit[0].OldValue)
	assert.Equal(t, "1 Main St", audit[0].NewValue)
}

func TestResolveReview_UnknownItem(t *testing.T) {
	e, _, _, _ := setupReview(t)

	_, err := e.ResolveReview(context.Background(), 999, model.ReviewActionApprove, "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestResolveReview_UnknownAction(t *testing.T) {
	e, _, _, item := setupReview(t)

	_, err := e.ResolveReview(context.Background(), item.ID, "escalate", "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidAction))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewActionApprove, a)

	_, err = ParseAction("delete")
	assert.True(t, eris.Is(err, ErrInvalidAction))
}

func TestResolution_RejectUsesItemValue(t *testing.T) {
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	item := model.ManualReviewItem{
		ID:             7,
		ProviderID:     3,
		FieldName:      model.FieldPhone,
		CurrentValue:   "111",
		SuggestedValue: "222",
		Status:         model.ReviewPending,
	}
	// The provider moved on since the item was raised.
	p := model.Provider{ID: 3, Phone: "333"}

	res, err := resolution(item, p, model.ReviewActionReject, "", at)
	require.NoError(t, err)
	assert.Equal(t, "111", res.Audit.OldValue)
	assert.Equal(t, "111", res.Audit.NewValue)

	res, err = resolution(item, p, model.ReviewActionApprove, "", at)
	require.NoError(t, err)
	assert.Equal(t, "333", res.Audit.OldValue)
	assert.Equal(t, "222", res.Audit.NewValue)
	assert.Equal(t, at, res.At)

	item.Status = model.ReviewRejected
	_, err = resolution(item, p, model.ReviewActionApprove, "", at)
	assert.True(t, eris.Is(err, ErrAlreadyResolved))
}
