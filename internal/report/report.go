// Package report writes provider scores and the pending review queue to an
// XLSX workbook.
package report

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
)

// Sheet names.
const (
	ProvidersSheet = "Providers"
	ReviewSheet    = "Manual Review"
)

const (
	pageSize = 500
	// maxReviewRows bounds the review sheet.
	maxReviewRows = 10000
)

var (
	providerHeader = []string{"ID", "External ID", "Name", "PCS", "Band", "Drift Score", "Drift Bucket", "Next Check (days)"}
	reviewHeader   = []string{"ID", "Provider ID", "Field", "Current Value", "Suggested Value", "Reason", "Created At"}
)

// Store is the read surface the report needs.
type Store interface {
	ListProviderSummaries(ctx context.Context, filter store.ProviderFilter) ([]model.ProviderSummary, error)
	ListReviewItems(ctx context.Context, filter store.ReviewFilter) ([]model.ManualReviewItem, error)
}

// Summary counts the rows written to each sheet.
type Summary struct {
	Providers int `json:"providers"`
	Reviews   int `json:"reviews"`
}

// Build assembles the workbook in memory.
func Build(ctx context.Context, st Store) (*xlsx.File, Summary, error) {
	var sum Summary
	f := xlsx.NewFile()

	providers, err := f.AddSheet(ProvidersSheet)
	if err != nil {
		return nil, sum, eris.Wrap(err, "report: add providers sheet")
	}
	addRow(providers, providerHeader)
	for offset := 0; ; offset += pageSize {
		page, err := st.ListProviderSummaries(ctx, store.ProviderFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, sum, eris.Wrap(err, "report: list providers")
		}
		for _, p := range page {
			writeProvider(providers.AddRow(), p)
		}
		sum.Providers += len(page)
		if len(page) < pageSize {
			break
		}
	}

	review, err := f.AddSheet(ReviewSheet)
	if err != nil {
		return nil, sum, eris.Wrap(err, "report: add review sheet")
	}
	addRow(review, reviewHeader)
	items, err := st.ListReviewItems(ctx, store.ReviewFilter{Status: model.ReviewPending, Limit: maxReviewRows})
	if err != nil {
		return nil, sum, eris.Wrap(err, "report: list review items")
	}
	for _, it := range items {
		row := review.AddRow()
		row.AddCell().SetInt64(it.ID)
		row.AddCell().SetInt64(it.ProviderID)
		row.AddCell().SetString(string(it.FieldName))
		row.AddCell().SetString(it.CurrentValue)
		row.AddCell().SetString(it.SuggestedValue)
		row.AddCell().SetString(it.Reason)
		row.AddCell().SetDateTime(it.CreatedAt)
	}
	sum.Reviews = len(items)

	return f, sum, nil
}

// Export writes the workbook to path.
func Export(ctx context.Context, st Store, path string) (Summary, error) {
	f, sum, err := Build(ctx, st)
	if err != nil {
		return sum, err
	}
	if err := f.Save(path); err != nil {
		return sum, eris.Wrapf(err, "report: save %s", path)
	}
	zap.L().Info("report: exported",
		zap.String("path", path),
		zap.Int("providers", sum.Providers),
		zap.Int("reviews", sum.Reviews),
	)
	return sum, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// writeProvider leaves score cells blank for providers never scored.
func writeProvider(row *xlsx.Row, p model.ProviderSummary) {
	row.AddCell().SetInt64(p.ID)
	row.AddCell().SetString(p.ExternalID)
	row.AddCell().SetString(p.Name)
	floatCell(row, p.PCS)
	row.AddCell().SetString(p.Band)
	floatCell(row, p.DriftScore)
	row.AddCell().SetString(p.DriftBucket)
	if p.NextCheck != nil {
		row.AddCell().SetInt(*p.NextCheck)
	} else {
		row.AddCell()
	}
}

func floatCell(row *xlsx.Row, v *float64) {
	c := row.AddCell()
	if v != nil {
		c.SetFloat(*v)
	}
}
