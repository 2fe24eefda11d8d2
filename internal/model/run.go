package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RunStatus represents the state of a validation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
)

// RunType labels why a batch was started.
type RunType string

const (
	RunTypeDaily      RunType = "daily"
	RunTypeWeekly     RunType = "weekly"
	RunTypeOnboarding RunType = "onboarding"
)

// ParseRunType validates s. An empty string means daily.
func ParseRunType(s string) (RunType, error) {
	switch t := RunType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return RunTypeDaily, nil
	case RunTypeDaily, RunTypeWeekly, RunTypeOnboarding:
		return t, nil
	default:
		return "", eris.Errorf("model: unknown run type %q", s)
	}
}

// Run is one batch validation pass. Counters only include providers that
// completed without error.
type Run struct {
	ID             string     `json:"id"`
	Type           RunType    `json:"type"`
	Status         RunStatus  `json:"status"`
	Limit          int        `json:"limit"`
	CountProcessed int        `json:"count_processed"`
	AutoUpdates    int        `json:"auto_updates"`
	ManualReviews  int        `json:"manual_reviews"`
	Failed         int        `json:"failed"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the elapsed run time, or zero for unfinished runs.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats is the dashboard summary across runs and scores.
type Stats struct {
	LatestRun         *Run           `json:"latest_run"`
	ProviderCount     int            `json:"provider_count"`
	AvgPCS            *float64       `json:"avg_pcs"`
	PendingReviews    int            `json:"pending_reviews"`
	DriftDistribution map[string]int `json:"drift_distribution"`
	PCSDistribution   map[string]int `json:"pcs_distribution"`
	Trend             []Run          `json:"trend"`
}

// PCSBucket names the distribution bucket for a quality score.
func PCSBucket(pcs float64) string {
	switch {
	case pcs < 50:
		return "0-50"
	case pcs < 70:
		return "50-70"
	case pcs < 90:
		return "70-90"
	default:
		return "90-100"
	}
}
