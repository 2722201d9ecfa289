// Package carto provides a client for the Philadelphia Carto SQL API.
package carto

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/propply/compliance-cli/internal/resilience"
)

const defaultBaseURL = "https://phl.carto.com/api/v2/sql"

// Client executes read-only SQL queries against Philadelphia open data.
type Client interface {
	Query(ctx context.Context, sql string) ([]map[string]any, error)
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

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)) }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Carto SQL client.
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

type queryResponse struct {
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
	Error     []string         `json:"error"`
}

func (c *httpClient) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "carto: rate limit")
	}

	params := url.Values{}
	params.Set("q", sql)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "carto: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "carto: query")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "carto: read body")
	}

	if resp.StatusCode != http.StatusOK {
		queryErr := eris.Errorf("carto: unexpected status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewTransientError(queryErr, resp.StatusCode)
		}
		return nil, queryErr
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "carto: parse response")
	}
	if len(parsed.Error) > 0 {
		return nil, eris.Errorf("carto: query failed: %s", parsed.Error[0])
	}
	return parsed.Rows, nil
}
