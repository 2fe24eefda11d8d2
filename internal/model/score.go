package model

import "time"

// Band is the traffic-light grade of a provider quality score.
type Band string

const (
	BandGreen Band = "green"
	BandAmber Band = "amber"
	BandRed   Band = "red"
)

// DriftBucket is the coarse drift-risk grade.
type DriftBucket string

const (
	DriftLow    DriftBucket = "Low"
	DriftMedium DriftBucket = "Medium"
	DriftHigh   DriftBucket = "High"
)

// ProviderScore is the composite quality score (PCS) of a provider and its
// eight sub-scores. One row per provider, overwritten on each computation.
type ProviderScore struct {
	ProviderID int64     `json:"provider_id"`
	PCS        float64   `json:"pcs"`
	SRM        float64   `json:"srm"`
	FR         float64   `json:"fr"`
	ST         float64   `json:"st"`
	MB         float64   `json:"mb"`
	DQ         float64   `json:"dq"`
	RP         float64   `json:"rp"`
	LH         float64   `json:"lh"`
	HA         float64   `json:"ha"`
	Band       Band      `json:"band"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DriftScore estimates how soon a provider record is likely to go stale.
type DriftScore struct {
	ProviderID    int64       `json:"provider_id"`
	Score         float64     `json:"score"`
	Bucket        DriftBucket `json:"bucket"`
	NextCheckDays int         `json:"recommended_next_check_days"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
