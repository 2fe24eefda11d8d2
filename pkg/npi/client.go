// Package npi provides a client for the CMS NPI Registry API (v2.1).
package npi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/provider-reconcile/internal/resilience"
)

// DefaultBaseURL is the public registry endpoint.
const DefaultBaseURL = "https://npiregistry.cms.hhs.gov/api"

// ErrInvalidNumber is returned without a network call when the identifier
// fails the NPI check digit.
var ErrInvalidNumber = eris.New("npi: invalid number")

// Client looks up providers in the NPI registry.
type Client interface {
	// Lookup returns the normalized record for number, or nil when the
	// registry has no result for it.
	Lookup(ctx context.Context, number string) (*Record, error)
}

// Record is the subset of a registry result used for reconciliation.
// Empty strings mean the registry did not supply the value. The registry
// never publishes license expiry.
type Record struct {
	Phone     string
	Address   string
	Specialty string
	LicenseNo string
}

type response struct {
	ResultCount int      `json:"result_count"`
	Results     []result `json:"results"`
}

type result struct {
	Number     string     `json:"number"`
	Addresses  []address  `json:"addresses"`
	Taxonomies []taxonomy `json:"taxonomies"`
}

type address struct {
	Purpose         string `json:"address_purpose"`
	Address1        string `json:"address_1"`
	City            string `json:"city"`
	State           string `json:"state"`
	PostalCode      string `json:"postal_code"`
	TelephoneNumber string `json:"telephone_number"`
}

type taxonomy struct {
	Desc    string `json:"desc"`
	License string `json:"license"`
	Primary bool   `json:"primary"`
}

// Option configures the registry client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces requests to rps per second. Zero or less disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithRetry sets how transient failures (429, 5xx, network) are retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a registry client with a 5s timeout and 10 req/s pacing.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(10, 10),
		retry:   resilience.RetryConfig{MaxAttempts: 2, OnRetry: resilience.RetryLogger("npi", "lookup")},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, number string) (*Record, error) {
	if !IsValid(number) {
		return nil, ErrInvalidNumber
	}

	q := url.Values{}
	q.Set("number", number)
	q.Set("version", "2.1")
	q.Set("limit", "1")
	reqURL := c.baseURL + "/?" + q.Encode()

	body, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, reqURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "npi: lookup %s", number)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "npi: unmarshal response")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return normalize(resp.Results[0]), nil
}

func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "npi: rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "npi: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "npi: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "npi: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("npi: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}

func normalize(r result) *Record {
	rec := &Record{}

	if a := primaryAddress(r.Addresses); a != nil {
		rec.Phone = strings.TrimSpace(a.TelephoneNumber)
		rec.Address = joinNonEmpty(a.Address1, a.City, a.State, a.PostalCode)
	}
	if t := primaryTaxonomy(r.Taxonomies); t != nil {
		rec.Specialty = strings.TrimSpace(t.Desc)
		rec.LicenseNo = strings.TrimSpace(t.License)
	}
	return rec
}

// primaryAddress prefers the practice location over the mailing address.
func primaryAddress(addrs []address) *address {
	for i := range addrs {
		switch strings.ToUpper(addrs[i].Purpose) {
		case "LOCATION", "PRIMARY":
			return &addrs[i]
		}
	}
	if len(addrs) > 0 {
		return &addrs[0]
	}
	return nil
}

func primaryTaxonomy(taxes []taxonomy) *taxonomy {
	for i := range taxes {
		if taxes[i].Primary {
			return &taxes[i]
		}
	}
	if len(taxes) > 0 {
		return &taxes[0]
	}
	return nil
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
