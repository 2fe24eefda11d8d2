package source

import (
	"context"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// Directory serves a static directory source (state board, hospital, maps)
// from the fixture table.
type Directory struct {
	source   model.SourceID
	fixtures *Fixtures
}

// NewDirectory creates a fixture-backed adapter for src.
func NewDirectory(src model.SourceID, fixtures *Fixtures) *Directory {
	return &Directory{source: src, fixtures: fixtures}
}

func (d *Directory) Source() model.SourceID { return d.source }

func (d *Directory) Fetch(_ context.Context, p *model.Provider) (Record, error) {
	return d.fixtures.Lookup(d.source, p.ExternalID), nil
}
