package source

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/resilience"
	"github.com/sells-group/provider-reconcile/pkg/npi"
)

// Registry looks providers up in the NPI registry. Without a live client it
// serves the registry fixture. License expiry is never reported.
type Registry struct {
	client   npi.Client
	breaker  *resilience.Breaker
	fixtures *Fixtures
}

// RegistryOption configures a Registry adapter.
type RegistryOption func(*Registry)

// WithLiveClient queries the registry API through client.
func WithLiveClient(client npi.Client) RegistryOption {
	return func(r *Registry) {
		r.client = client
	}
}

// WithRegistryBreaker guards live lookups with b.
func WithRegistryBreaker(b *resilience.Breaker) RegistryOption {
	return func(r *Registry) {
		r.breaker = b
	}
}

// NewRegistry creates the registry adapter.
func NewRegistry(fixtures *Fixtures, opts ...RegistryOption) *Registry {
	r := &Registry{fixtures: fixtures}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Source() model.SourceID { return model.SourceRegistry }

// Live reports whether lookups go to the registry API.
func (r *Registry) Live() bool { return r.client != nil }

func (r *Registry) Fetch(ctx context.Context, p *model.Provider) (Record, error) {
	var rec Record
	if r.client == nil {
		if r.fixtures != nil {
			rec = r.fixtures.Lookup(model.SourceRegistry, p.ExternalID)
		}
	} else {
		var err error
		rec, err = r.lookup(ctx, p.ExternalID)
		if err != nil {
			return nil, err
		}
	}
	delete(rec, model.FieldLicenseExpiry)
	return rec, nil
}

func (r *Registry) lookup(ctx context.Context, externalID string) (Record, error) {
	if !npi.IsValid(externalID) {
		zap.L().Debug("source: skipping registry lookup for invalid npi", zap.String("external_id", externalID))
		return Record{}, nil
	}

	res, err := resilience.Call(ctx, r.breaker, func(ctx context.Context) (*npi.Record, error) {
		return r.client.Lookup(ctx, externalID)
	})
	if errors.Is(err, npi.ErrInvalidNumber) {
		return Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return Record{}, nil
	}

	rec := Record{}
	set := func(f model.FieldName, v string) {
		if v != "" {
			rec[f] = v
		}
	}
	set(model.FieldPhone, res.Phone)
	set(model.FieldAddress, res.Address)
	set(model.FieldSpecialty, res.Specialty)
	set(model.FieldLicenseNo, res.LicenseNo)
	return rec, nil
}
