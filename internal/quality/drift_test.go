package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/provider-reconcile/internal/model"
)

func TestComputeDrift(t *testing.T) {
	tests := []struct {
		name   string
		p      model.Provider
		pcs    *float64
		score  float64
		bucket model.DriftBucket
		next   int
	}{
		{"quiet record", model.Provider{}, nil, 0.2, model.DriftLow, 30},
		{"good quality", model.Provider{}, fp(90), 0.2, model.DriftLow, 30},
		{"changed recently", model.Provider{LastChangedAt: daysAgo(10)}, nil, 0.55, model.DriftMedium, 14},
		{"changed lately", model.Provider{LastChangedAt: daysAgo(60)}, nil, 0.45, model.DriftMedium, 14},
		{"changed long ago", model.Provider{LastChangedAt: daysAgo(200)}, nil, 0.2, model.DriftLow, 30},
		{"license expiring", model.Provider{LicenseExpiry: "2025-07-01"}, nil, 0.45, model.DriftMedium, 14},
		{"bad license date", model.Provider{LicenseExpiry: "soon"}, nil, 0.2, model.DriftLow, 30},
		{"marginal quality", model.Provider{}, fp(60), 0.35, model.DriftMedium, 14},
		{"expired and poor", model.Provider{LicenseExpiry: "2025-01-01"}, fp(40), 0.8, model.DriftHigh, 7},
		{"clamped", model.Provider{LastChangedAt: daysAgo(1), LicenseExpiry: "2024-01-01"}, fp(10), 1.0, model.DriftHigh, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ComputeDrift(tt.p, tt.pcs, testNow)
			assert.InDelta(t, tt.score, d.Score, 1e-9)
			assert.Equal(t, tt.bucket, d.Bucket)
			assert.Equal(t, tt.next, d.NextCheckDays)
		})
	}
}

func bucketRank(b model.DriftBucket) int {
	switch b {
	case model.DriftLow:
		return 0
	case model.DriftMedium:
		return 1
	default:
		return 2
	}
}

func TestComputeDrift_Monotonic(t *testing.T) {
	// Each list is ordered from least to most risky.
	changed := []*model.Provider{
		{},
		{LastChangedAt: daysAgo(120)},
		{LastChangedAt: daysAgo(60)},
		{LastChangedAt: daysAgo(5)},
	}
	expiries := []string{"", "2026-01-01", "2025-07-01", "2025-01-01"}
	qualities := []float64{95, 65, 30}

	drift := func(ci, ei, qi int) model.DriftScore {
		p := *changed[ci]
		p.LicenseExpiry = expiries[ei]
		q := qualities[qi]
		return ComputeDrift(p, &q, testNow)
	}

	for ci := range changed {
		for ei := range expiries {
			for qi := range qualities {
				base := drift(ci, ei, qi)
				if ci+1 < len(changed) {
					next := drift(ci+1, ei, qi)
					assert.GreaterOrEqual(t, next.Score, base.Score)
					assert.GreaterOrEqual(t, bucketRank(next.Bucket), bucketRank(base.Bucket))
				}
				if ei+1 < len(expiries) {
					next := drift(ci, ei+1, qi)
					assert.GreaterOrEqual(t, next.Score, base.Score)
					assert.GreaterOrEqual(t, bucketRank(next.Bucket), bucketRank(base.Bucket))
				}
				if qi+1 < len(qualities) {
					next := drift(ci, ei, qi+1)
					assert.GreaterOrEqual(t, next.Score, base.Score)
					assert.GreaterOrEqual(t, bucketRank(next.Bucket), bucketRank(base.Bucket))
				}
			}
		}
	}
}

func TestBucketFor(t *testing.T) {
	b, n := BucketFor(0.329)
	assert.Equal(t, model.DriftLow, b)
	assert.Equal(t, 30, n)
	b, n = BucketFor(0.33)
	assert.Equal(t, model.DriftMedium, b)
	assert.Equal(t, 14, n)
	b, n = BucketFor(0.66)
	assert.Equal(t, model.DriftHigh, b)
	assert.Equal(t, 7, n)
}
