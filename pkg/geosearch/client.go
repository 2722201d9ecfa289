// Package geosearch resolves NYC addresses to property identifiers (BIN,
// BBL, borough, block, lot) via the NYC Planning GeoSearch API.
package geosearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://geosearch.planninglabs.nyc/v2"

// ErrNotFound is returned when GeoSearch has no match for an address.
var ErrNotFound = eris.New("geosearch: address not found")

// Client looks up property identifiers for an address.
type Client interface {
	Lookup(ctx context.Context, address string) (*Property, error)
}

// Property holds the identifiers GeoSearch resolves for an address.
type Property struct {
	BIN     string
	BBL     string
	Borough string
	Block   string
	Lot     string
	Address string
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

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a GeoSearch client. The API requires no credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Features []struct {
		Properties struct {
			Borough     string `json:"borough"`
			HouseNumber string `json:"housenumber"`
			Street      string `json:"street"`
			Addendum    struct {
				PAD struct {
					BIN string `json:"bin"`
					BBL string `json:"bbl"`
				} `json:"pad"`
			} `json:"addendum"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *httpClient) Lookup(ctx context.Context, address string) (*Property, error) {
	params := url.Values{
		"text": {address},
		"size": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geosearch: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geosearch: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geosearch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geosearch: read body")
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "geosearch: parse response")
	}

	if len(payload.Features) == 0 {
		return nil, ErrNotFound
	}

	props := payload.Features[0].Properties
	pad := props.Addendum.PAD

	p := &Property{
		BIN:     pad.BIN,
		BBL:     pad.BBL,
		Borough: props.Borough,
		Address: strings.TrimSpace(props.HouseNumber + " " + props.Street),
	}
	p.Block, p.Lot = splitBBL(pad.BBL)
	return p, nil
}

// splitBBL derives block and lot from a 10-digit BBL
// (1 borough digit, 5 block digits, 4 lot digits), stripping leading zeros.
func splitBBL(bbl string) (block, lot string) {
	if len(bbl) < 10 {
		return "", ""
	}
	return strings.TrimLeft(bbl[1:6], "0"), strings.TrimLeft(bbl[6:10], "0")
}
