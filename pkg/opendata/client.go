// Package opendata provides a client for NYC Open Data (Socrata SODA)
// compliance datasets.
package opendata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/propply/compliance-cli/internal/resilience"
)

const defaultBaseURL = "https://data.cityofnewyork.us/resource"

// Dataset identifies one of the supported compliance datasets.
type Dataset string

const (
	DatasetHPDViolations       Dataset = "hpd_violations"
	DatasetDOBViolations       Dataset = "dob_violations"
	DatasetElevatorInspections Dataset = "elevator_inspections"
	DatasetBoilerInspections   Dataset = "boiler_inspections"
	DatasetElectricalPermits   Dataset = "electrical_permits"
)

// datasetIDs maps dataset keys to Socrata resource identifiers.
var datasetIDs = map[Dataset]string{
	DatasetHPDViolations:       "wvxf-dwi5",
	DatasetDOBViolations:       "3h2n-5cm9",
	DatasetElevatorInspections: "e5aq-a4j2",
	DatasetBoilerInspections:   "52dp-yji6",
	DatasetElectricalPermits:   "dm9a-ab7w",
}

// Query holds SoQL query parameters.
type Query struct {
	Where  string
	Select string
	Order  string
	Limit  int
	Offset int
}

// Client fetches rows from NYC Open Data.
type Client interface {
	// Fetch returns raw rows for a dataset. An empty result is valid.
	Fetch(ctx context.Context, dataset Dataset, q Query) ([]map[string]any, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithAppToken sets the Socrata application token, raising the
// anonymous-request throttling limits.
func WithAppToken(token string) Option {
	return func(c *httpClient) { c.appToken = token }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)) }
}

type httpClient struct {
	baseURL  string
	appToken string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an NYC Open Data client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Fetch(ctx context.Context, dataset Dataset, q Query) ([]map[string]any, error) {
	id, ok := datasetIDs[dataset]
	if !ok {
		return nil, eris.Errorf("opendata: unknown dataset %q", dataset)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "opendata: rate limit")
	}

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("$limit", fmt.Sprintf("%d", q.Limit))
	}
	if q.Offset > 0 {
		params.Set("$offset", fmt.Sprintf("%d", q.Offset))
	}
	if q.Where != "" {
		params.Set("$where", q.Where)
	}
	if q.Select != "" {
		params.Set("$select", q.Select)
	}
	if q.Order != "" {
		params.Set("$order", q.Order)
	}

	reqURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, id, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "opendata: build request")
	}
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "opendata: fetch %s", dataset)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "opendata: read body")
	}

	if resp.StatusCode != http.StatusOK {
		fetchErr := eris.Errorf("opendata: %s unexpected status %d: %s", dataset, resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewTransientError(fetchErr, resp.StatusCode)
		}
		return nil, fetchErr
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, eris.Wrapf(err, "opendata: parse %s response", dataset)
	}
	return rows, nil
}
