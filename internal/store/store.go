// Package store persists providers, documents, runs, reconciliation history,
// review items, audit entries and scores.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// ErrNotFound is returned when a provider, run or review item does not exist.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// ProviderFilter pages through provider summaries.
type ProviderFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ReviewFilter specifies criteria for listing review items. An empty Status
// matches every status.
type ReviewFilter struct {
	Status     model.ReviewStatus `json:"status,omitempty"`
	ProviderID int64              `json:"provider_id,omitempty"`
	Limit      int                `json:"limit,omitempty"`
}

// ResolveFunc decides how a review item is resolved, given the item and its
// provider as read inside the resolving transaction. Returning an error
// aborts the transaction.
type ResolveFunc func(item model.ManualReviewItem, p model.Provider) (model.ReviewResolution, error)

// Store defines the persistence interface for provider reconciliation.
type Store interface {
	// Providers
	CreateProvider(ctx context.Context, p *model.Provider) error
	GetProvider(ctx context.Context, id int64) (*model.Provider, error)
	GetProviderByExternalID(ctx context.Context, externalID string) (*model.Provider, error)
	ListStaleProviders(ctx context.Context, limit int) ([]model.Provider, error)
	ListProviderIDs(ctx context.Context) ([]int64, error)
	ListProviderSummaries(ctx context.Context, filter ProviderFilter) ([]model.ProviderSummary, error)

	// Documents
	AddDocument(ctx context.Context, d *model.Document) error
	ListDocuments(ctx context.Context, providerID int64) ([]model.Document, error)

	// Runs
	CreateRun(ctx context.Context, r *model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Reconciliation
	CommitReconciliation(ctx context.Context, rec *model.Reconciliation) error
	ListFieldConfidence(ctx context.Context, providerID int64) ([]model.FieldConfidence, error)

	// Review
	GetReviewItem(ctx context.Context, id int64) (*model.ManualReviewItem, error)
	ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ManualReviewItem, error)
	ResolveReview(ctx context.Context, id int64, fn ResolveFunc) (*model.ReviewResolution, error)
	ListAudit(ctx context.Context, providerID int64) ([]model.AuditEntry, error)

	// Scores
	SaveScores(ctx context.Context, score model.ProviderScore, drift model.DriftScore) error
	GetScores(ctx context.Context, providerID int64) (*model.ProviderScore, *model.DriftScore, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// trendRuns is how many recent runs the stats trend covers.
const trendRuns = 5

// defaultListLimit caps list queries when the caller gives no limit.
const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// staleProviderOrder puts never-verified providers first, then the oldest
// verification.
const staleProviderOrder = `ORDER BY last_verified_at IS NOT NULL, last_verified_at ASC, id ASC`

// reconciledColumns is the provider column list for the five reconciled
// fields, in model.Fields order.
const reconciledColumns = `phone, address, specialty, license_no, license_expiry`

func marshalSources(sources []model.SourceID) ([]byte, error) {
	if sources == nil {
		sources = []model.SourceID{}
	}
	b, err := json.Marshal(sources)
	return b, eris.Wrap(err, "store: marshal sources")
}

func unmarshalSources(b []byte) ([]model.SourceID, error) {
	var out []model.SourceID
	if len(b) == 0 {
		return out, nil
	}
	return out, eris.Wrap(json.Unmarshal(b, &out), "store: unmarshal sources")
}

// applyOutcomes mutates p with every auto_update decision in rec and returns
// the audit rows to write. A decision whose From no longer matches the
// stored value means the provider changed underneath the reconciliation.
func applyOutcomes(p *model.Provider, rec *model.Reconciliation) ([]model.AuditEntry, error) {
	var audits []model.AuditEntry
	for _, f := range rec.Fields {
		d := f.Decision
		if d.Kind != model.DecisionAutoUpdate {
			continue
		}
		if cur := p.Value(d.Field); cur != d.From {
			return nil, eris.Errorf("store: provider %d field %s changed during reconciliation", p.ID, d.Field)
		}
		if err := p.SetValue(d.Field, d.To); err != nil {
			return nil, err
		}
		audits = append(audits, model.AuditEntry{
			ProviderID: p.ID,
			FieldName:  d.Field,
			OldValue:   d.From,
			NewValue:   d.To,
			Action:     model.AuditAutoUpdate,
			Actor:      rec.Actor,
			CreatedAt:  rec.At,
		})
	}
	if len(audits) > 0 {
		at := rec.At
		p.LastChangedAt = &at
		p.LastVerifiedAt = &at
	}
	return audits, nil
}

// applyResolution mutates p for an applied review resolution.
func applyResolution(p *model.Provider, res model.ReviewResolution) error {
	if !res.Apply {
		return nil
	}
	if err := p.SetValue(res.Field, res.Audit.NewValue); err != nil {
		return err
	}
	at := res.At
	p.LastChangedAt = &at
	p.LastVerifiedAt = &at
	return nil
}

func reconciledValues(p *model.Provider) []any {
	return []any{p.Phone, p.Address, p.Specialty, p.LicenseNo, p.LicenseExpiry}
}

// newStats seeds the distribution maps so every bucket is present.
func newStats() *model.Stats {
	return &model.Stats{
		DriftDistribution: map[string]int{
			string(model.DriftLow):    0,
			string(model.DriftMedium): 0,
			string(model.DriftHigh):   0,
		},
		PCSDistribution: map[string]int{"0-50": 0, "50-70": 0, "70-90": 0, "90-100": 0},
		Trend:           []model.Run{},
	}
}
