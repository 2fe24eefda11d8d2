// Package quality computes the provider composite quality score (PCS) and
// the drift-risk estimate from persisted reconciliation state.
package quality

import (
	"math"
	"time"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Sub-score weights of the PCS. They sum to 1.
const (
	WeightSRM = 0.25
	WeightFR  = 0.15
	WeightST  = 0.10
	WeightMB  = 0.15
	WeightDQ  = 0.10
	WeightRP  = 0.10
	WeightLH  = 0.10
	WeightHA  = 0.05
)

// Reputation and historical-accuracy signals are not modeled yet; both
// sub-scores are fixed until real definitions exist.
const (
	ReputationScore         = 0.5
	HistoricalAccuracyScore = 0.8
)

// lowConfidence is the cut-off below which a confidence row counts as a mismatch.
const lowConfidence = 0.7

// licenseDateLayout is the expected license_expiry format.
const licenseDateLayout = "2006-01-02"

// Inputs is the persisted state a score is derived from.
type Inputs struct {
	Provider    model.Provider
	Confidences []float64
	// DocConfidences holds one entry per document; nil means not yet OCR'd.
	DocConfidences []*float64
}

// ComputePCS derives the quality score of in at time now.
func ComputePCS(in Inputs, now time.Time) model.ProviderScore {
	s := model.ProviderScore{
		ProviderID: in.Provider.ID,
		SRM:        srm(in.Confidences),
		FR:         freshness(in.Provider.LastVerifiedAt, now),
		ST:         stability(in.Provider.LastChangedAt, now),
		MB:         mismatchBurden(in.Confidences),
		DQ:         documentQuality(in.DocConfidences),
		RP:         ReputationScore,
		LH:         licenseHorizon(in.Provider.LicenseExpiry, now),
		HA:         HistoricalAccuracyScore,
		UpdatedAt:  now,
	}
	s.PCS = 100 * (WeightSRM*s.SRM +
		WeightFR*s.FR +
		WeightST*s.ST +
		WeightMB*s.MB +
		WeightDQ*s.DQ +
		WeightRP*s.RP +
		WeightLH*s.LH +
		WeightHA*s.HA)
	s.Band = BandFor(s.PCS)
	return s
}

// BandFor grades a PCS value.
func BandFor(pcs float64) model.Band {
	switch {
	case pcs >= 85:
		return model.BandGreen
	case pcs >= 70:
		return model.BandAmber
	default:
		return model.BandRed
	}
}

func srm(confs []float64) float64 {
	if len(confs) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, c := range confs {
		sum += c
	}
	return sum / float64(len(confs))
}

func freshness(lastVerified *time.Time, now time.Time) float64 {
	if lastVerified == nil {
		return 0.3
	}
	days := daysBetween(*lastVerified, now)
	switch {
	case days <= 30:
		return 1.0
	case days <= 90:
		return 0.8
	case days <= 180:
		return 0.5
	default:
		return 0.2
	}
}

// stability rewards records that have stayed unchanged for longer.
func stability(lastChanged *time.Time, now time.Time) float64 {
	if lastChanged == nil {
		return 1.0
	}
	days := daysBetween(*lastChanged, now)
	switch {
	case days > 180:
		return 1.0
	case days > 90:
		return 0.8
	case days > 30:
		return 0.6
	default:
		return 0.3
	}
}

func mismatchBurden(confs []float64) float64 {
	low := 0
	for _, c := range confs {
		if c < lowConfidence {
			low++
		}
	}
	switch {
	case low == 0:
		return 1.0
	case low <= 2:
		return 0.7
	case low <= 4:
		return 0.4
	default:
		return 0.1
	}
}

func documentQuality(docs []*float64) float64 {
	if len(docs) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, c := range docs {
		if c == nil {
			sum += 0.5
			continue
		}
		sum += *c
	}
	return math.Max(0.3, math.Min(1.0, sum/float64(len(docs))))
}

func licenseHorizon(expiry string, now time.Time) float64 {
	days, ok := daysUntilExpiry(expiry, now)
	if !ok {
		return 0.4
	}
	switch {
	case days >= 60:
		return 1.0
	case days >= 30:
		return 0.6
	case days >= 0:
		return 0.4
	default:
		return 0.0
	}
}

// daysBetween returns whole days elapsed from t to now, rounding down.
func daysBetween(t, now time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// daysUntilExpiry parses a YYYY-MM-DD expiry date and returns whole days
// from now until midnight UTC of that date, rounding down.
func daysUntilExpiry(expiry string, now time.Time) (int, bool) {
	if expiry == "" {
		return 0, false
	}
	exp, err := time.Parse(licenseDateLayout, expiry)
	if err != nil {
		return 0, false
	}
	return daysBetween(now, exp), true
}
