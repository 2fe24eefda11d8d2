package quality

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Store is the persistence surface the score computation needs.
type Store interface {
	GetProvider(ctx context.Context, id int64) (*model.Provider, error)
	ListProviderIDs(ctx context.Context) ([]int64, error)
	ListFieldConfidence(ctx context.Context, providerID int64) ([]model.FieldConfidence, error)
	ListDocuments(ctx context.Context, providerID int64) ([]model.Document, error)
	SaveScores(ctx context.Context, score model.ProviderScore, drift model.DriftScore) error
}

// Computer recomputes and persists provider scores.
type Computer struct {
	store Store
	now   func() time.Time
}

// NewComputer creates a Computer reading from and writing to st.
func NewComputer(st Store) *Computer {
	return &Computer{store: st, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (c *Computer) WithClock(now func() time.Time) *Computer {
	c.now = now
	return c
}

// Compute recomputes the PCS and drift score of a single provider and
// replaces its stored score rows.
func (c *Computer) Compute(ctx context.Context, providerID int64) (model.ProviderScore, model.DriftScore, error) {
	p, err := c.store.GetProvider(ctx, providerID)
	if err != nil {
		return model.ProviderScore{}, model.DriftScore{}, eris.Wrapf(err, "quality: load provider %d", providerID)
	}

	rows, err := c.store.ListFieldConfidence(ctx, providerID)
	if err != nil {
		return model.ProviderScore{}, model.DriftScore{}, eris.Wrapf(err, "quality: load confidences for %d", providerID)
	}
	docs, err := c.store.ListDocuments(ctx, providerID)
	if err != nil {
		return model.ProviderScore{}, model.DriftScore{}, eris.Wrapf(err, "quality: load documents for %d", providerID)
	}

	in := Inputs{Provider: *p}
	for _, r := range rows {
		in.Confidences = append(in.Confidences, r.Confidence)
	}
	for _, d := range docs {
		in.DocConfidences = append(in.DocConfidences, d.OCRConfidence)
	}

	now := c.now().UTC()
	score := ComputePCS(in, now)
	drift := ComputeDrift(*p, &score.PCS, now)

	if err := c.store.SaveScores(ctx, score, drift); err != nil {
		return model.ProviderScore{}, model.DriftScore{}, eris.Wrapf(err, "quality: save scores for %d", providerID)
	}
	return score, drift, nil
}

// ComputeAll recomputes scores for every provider. A failing provider is
// logged and skipped; the returned error reports how many failed.
func (c *Computer) ComputeAll(ctx context.Context) (int, error) {
	ids, err := c.store.ListProviderIDs(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "quality: list providers")
	}

	var done, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, eris.Wrap(err, "quality: compute all")
		}
		if _, _, err := c.Compute(ctx, id); err != nil {
			failed++
			zap.L().Warn("quality: score computation failed",
				zap.Int64("provider_id", id),
				zap.Error(err),
			)
			continue
		}
		done++
	}

	zap.L().Info("quality: scores computed",
		zap.Int("computed", done),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return done, eris.Errorf("quality: %d of %d providers failed", failed, len(ids))
	}
	return done, nil
}
