package quality

import (
	"math"
	"time"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Drift contributions.
const (
	driftBase              = 0.2
	driftChangedRecently   = 0.35 // changed < 30 days ago
	driftChangedLately     = 0.25 // changed < 90 days ago
	driftLicenseExpired    = 0.35
	driftLicenseExpiring   = 0.25 // expires within 30 days
	driftQualityPoor       = 0.25 // PCS < 50
	driftQualityMarginal   = 0.15 // PCS < 70
	defaultQualityForDrift = 70.0
)

// ComputeDrift estimates re-verification urgency. A nil pcs is treated as 70,
// which adds no quality risk.
func ComputeDrift(p model.Provider, pcs *float64, now time.Time) model.DriftScore {
	score := driftBase

	if p.LastChangedAt != nil {
		days := daysBetween(*p.LastChangedAt, now)
		switch {
		case days < 30:
			score += driftChangedRecently
		case days < 90:
			score += driftChangedLately
		}
	}

	if days, ok := daysUntilExpiry(p.LicenseExpiry, now); ok {
		switch {
		case days < 0:
			score += driftLicenseExpired
		case days < 30:
			score += driftLicenseExpiring
		}
	}

	q := defaultQualityForDrift
	if pcs != nil {
		q = *pcs
	}
	switch {
	case q < 50:
		score += driftQualityPoor
	case q < 70:
		score += driftQualityMarginal
	}

	score = math.Max(0, math.Min(1, score))
	bucket, next := BucketFor(score)
	return model.DriftScore{
		ProviderID:    p.ID,
		Score:         score,
		Bucket:        bucket,
		NextCheckDays: next,
		UpdatedAt:     now,
	}
}

// BucketFor grades a drift score and returns the recommended recheck interval
// in days.
func BucketFor(score float64) (model.DriftBucket, int) {
	switch {
	case score < 0.33:
		return model.DriftLow, 30
	case score < 0.66:
		return model.DriftMedium, 14
	default:
		return model.DriftHigh, 7
	}
}
