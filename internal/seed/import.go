package seed

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
	"github.com/sells-group/provider-reconcile/pkg/npi"
)

// Store is the persistence surface the importer needs.
type Store interface {
	GetProviderByExternalID(ctx context.Context, externalID string) (*model.Provider, error)
	CreateProvider(ctx context.Context, p *model.Provider) error
	AddDocument(ctx context.Context, d *model.Document) error
}

// Result counts what an import did.
type Result struct {
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
	Documents int `json:"documents"`
}

// Importer creates providers from seed rows.
type Importer struct {
	store        Store
	documentsDir string
	strictNPI    bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithDocumentsDir attaches {dir}/{external_id}.png as a license document
// when that file exists.
func WithDocumentsDir(dir string) Option {
	return func(im *Importer) { im.documentsDir = dir }
}

// WithStrictNPI rejects ten-digit external ids that fail the NPI check
// digit. Used when the live registry is enabled.
func WithStrictNPI(strict bool) Option {
	return func(im *Importer) { im.strictNPI = strict }
}

// NewImporter creates an Importer.
func NewImporter(st Store, opts ...Option) *Importer {
	im := &Importer{store: st}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import creates a provider for every row whose external id is not already
// stored. Rows without an external id are skipped.
func (im *Importer) Import(ctx context.Context, rows []Row) (Result, error) {
	var res Result
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "seed: import cancelled")
		}
		if r.ExternalID == "" {
			zap.L().Warn("seed: row without external_id, skipping", zap.Int("row", i+2))
			res.Skipped++
			continue
		}
		if im.strictNPI && looksLikeNPI(r.ExternalID) && !npi.IsValid(r.ExternalID) {
			return res, eris.Errorf("seed: invalid NPI %q for provider %q", r.ExternalID, r.Name)
		}

		_, err := im.store.GetProviderByExternalID(ctx, r.ExternalID)
		switch {
		case err == nil:
			res.Skipped++
			continue
		case !store.IsNotFound(err):
			return res, eris.Wrapf(err, "seed: look up %s", r.ExternalID)
		}

		p := &model.Provider{
			ExternalID:    r.ExternalID,
			Name:          r.Name,
			Phone:         r.Phone,
			Address:       r.Address,
			Specialty:     r.Specialty,
			LicenseNo:     r.LicenseNo,
			LicenseExpiry: r.LicenseExpiry,
			Affiliations:  r.Affiliations,
		}
		if err := im.store.CreateProvider(ctx, p); err != nil {
			return res, eris.Wrapf(err, "seed: create %s", r.ExternalID)
		}
		res.Created++

		attached, err := im.attachLicense(ctx, p)
		if err != nil {
			return res, err
		}
		if attached {
			res.Documents++
		}
	}

	zap.L().Info("seed: import complete",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("documents", res.Documents),
	)
	return res, nil
}

func (im *Importer) attachLicense(ctx context.Context, p *model.Provider) (bool, error) {
	if im.documentsDir == "" {
		return false, nil
	}
	path := filepath.Join(im.documentsDir, p.ExternalID+".png")
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	doc := &model.Document{ProviderID: p.ID, DocType: model.DocTypeLicense, Path: path}
	if err := im.store.AddDocument(ctx, doc); err != nil {
		return false, eris.Wrapf(err, "seed: attach document for %s", p.ExternalID)
	}
	return true, nil
}

func looksLikeNPI(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
