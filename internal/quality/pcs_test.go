package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/provider-reconcile/internal/model"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func fp(v float64) *float64 { return &v }

func TestFreshness(t *testing.T) {
	tests := []struct {
		name string
		at   *time.Time
		want float64
	}{
		{"never verified", nil, 0.3},
		{"today", daysAgo(0), 1.0},
		{"30 days", daysAgo(30), 1.0},
		{"60 days", daysAgo(60), 0.8},
		{"90 days", daysAgo(90), 0.8},
		{"120 days", daysAgo(120), 0.5},
		{"181 days", daysAgo(181), 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, freshness(tt.at, testNow))
		})
	}
}

func TestStability(t *testing.T) {
	tests := []struct {
		name string
		at   *time.Time
		want float64
	}{
		{"never changed", nil, 1.0},
		{"200 days", daysAgo(200), 1.0},
		{"180 days", daysAgo(180), 0.8},
		{"91 days", daysAgo(91), 0.8},
		{"45 days", daysAgo(45), 0.6},
		{"30 days", daysAgo(30), 0.3},
		{"yesterday", daysAgo(1), 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stability(tt.at, testNow))
		})
	}
}

func TestMismatchBurden(t *testing.T) {
	assert.Equal(t, 1.0, mismatchBurden(nil))
	assert.Equal(t, 1.0, mismatchBurden([]float64{0.7, 0.9}))
	assert.Equal(t, 0.7, mismatchBurden([]float64{0.5, 0.69, 1}))
	assert.Equal(t, 0.4, mismatchBurden([]float64{0.1, 0.2, 0.3, 0.4}))
	assert.Equal(t, 0.1, mismatchBurden([]float64{0.1, 0.2, 0.3, 0.4, 0.5}))
}

func TestDocumentQuality(t *testing.T) {
	assert.Equal(t, 0.5, documentQuality(nil))
	assert.InDelta(t, 0.9, documentQuality([]*float64{fp(0.9)}), 1e-9)
	assert.InDelta(t, 0.7, documentQuality([]*float64{fp(0.9), nil}), 1e-9)
	assert.Equal(t, 0.3, documentQuality([]*float64{fp(0.1)}))
}

func TestLicenseHorizon(t *testing.T) {
	tests := []struct {
		expiry string
		want   float64
	}{
		{"", 0.4},
		{"not-a-date", 0.4},
		{"06/30/2026", 0.4},
		{"2026-06-15", 1.0},
		{"2025-08-14", 0.6}, // 59 days out
		{"2025-07-01", 0.4},
		{"2025-06-01", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.expiry, func(t *testing.T) {
			assert.Equal(t, tt.want, licenseHorizon(tt.expiry, testNow))
		})
	}
}

func TestComputePCS_Bounds(t *testing.T) {
	best := ComputePCS(Inputs{
		Provider: model.Provider{
			ID:             1,
			LastVerifiedAt: daysAgo(1),
			LicenseExpiry:  "2027-01-01",
		},
		Confidences:    []float64{1, 1, 1},
		DocConfidences: []*float64{fp(1)},
	}, testNow)
	assert.InDelta(t, 94.0, best.PCS, 1e-9)
	assert.Equal(t, model.BandGreen, best.Band)
	assert.Equal(t, int64(1), best.ProviderID)
	assert.Equal(t, testNow, best.UpdatedAt)

	fresh := ComputePCS(Inputs{Provider: model.Provider{ID: 2}}, testNow)
	assert.InDelta(t, 60.0, fresh.PCS, 1e-9)
	assert.Equal(t, model.BandRed, fresh.Band)
	assert.Equal(t, ReputationScore, fresh.RP)
	assert.Equal(t, HistoricalAccuracyScore, fresh.HA)
}

func TestComputePCS_AlwaysInRange(t *testing.T) {
	for _, confs := range [][]float64{nil, {0}, {0, 0, 0, 0, 0, 0}, {1, 1}} {
		for _, expiry := range []string{"", "2000-01-01", "2099-01-01"} {
			s := ComputePCS(Inputs{
				Provider:    model.Provider{LastVerifiedAt: daysAgo(400), LastChangedAt: daysAgo(2), LicenseExpiry: expiry},
				Confidences: confs,
			}, testNow)
			assert.GreaterOrEqual(t, s.PCS, 0.0)
			assert.LessOrEqual(t, s.PCS, 100.0)
		}
	}
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, model.BandGreen, BandFor(85))
	assert.Equal(t, model.BandAmber, BandFor(84.99))
	assert.Equal(t, model.BandAmber, BandFor(70))
	assert.Equal(t, model.BandRed, BandFor(69.99))
}
