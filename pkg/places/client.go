// Package places provides a Google Places API client for contractor
// search: proximity-biased text search plus per-place detail lookup.
package places

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

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Client performs Google Places API operations.
type Client interface {
	// TextSearch runs a proximity-biased text search. Zero results is a
	// valid outcome, not an error.
	TextSearch(ctx context.Context, req TextSearchRequest) ([]Candidate, error)

	// Details fetches extended fields for one place.
	Details(ctx context.Context, placeID string) (*Detail, error)
}

// TextSearchRequest describes one text search query.
type TextSearchRequest struct {
	Query        string
	Lat          float64
	Lng          float64
	RadiusMeters int
}

// Candidate is a single business returned by text search.
type Candidate struct {
	PlaceID        string
	Name           string
	Address        string
	Rating         float64
	RatingCount    int
	PriceLevel     int
	Types          []string
	BusinessStatus string
	Lat            float64
	Lng            float64
}

// Review is a customer review from the details endpoint.
type Review struct {
	Author       string
	Rating       float64
	Text         string
	Time         int64
	RelativeTime string
}

// Detail holds the extended fields from the details endpoint.
type Detail struct {
	PlaceID        string
	Name           string
	Address        string
	Phone          string
	Website        string
	Rating         float64
	RatingCount    int
	PriceLevel     int
	BusinessStatus string
	MapsURL        string
	OpenNow        *bool
	WeekdayText    []string
	Reviews        []Review
	Photos         []string
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

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// detailFields is the field list requested from the details endpoint.
// Restricting fields keeps the per-call billing tier down.
const detailFields = "place_id,name,formatted_address,geometry," +
	"formatted_phone_number,website,rating,user_ratings_total,reviews," +
	"opening_hours,business_status,price_level,url,photos"

type searchResponse struct {
	Status       string             `json:"status"`
	ErrorMessage string             `json:"error_message"`
	Results      []candidatePayload `json:"results"`
}

type candidatePayload struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	Types            []string `json:"types"`
	BusinessStatus   string   `json:"business_status"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) ([]Candidate, error) {
	params := url.Values{
		"query":    {req.Query},
		"location": {fmt.Sprintf("%f,%f", req.Lat, req.Lng)},
		"radius":   {fmt.Sprintf("%d", req.RadiusMeters)},
		"type":     {"establishment"},
		"key":      {c.apiKey},
	}

	var resp searchResponse
	if err := c.get(ctx, "/textsearch/json", params, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, eris.Errorf("places: text search status %s: %s", resp.Status, resp.ErrorMessage)
	}

	candidates := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		addr := r.FormattedAddress
		if addr == "" {
			addr = r.Vicinity
		}
		candidates = append(candidates, Candidate{
			PlaceID:        r.PlaceID,
			Name:           r.Name,
			Address:        addr,
			Rating:         r.Rating,
			RatingCount:    r.UserRatingsTotal,
			PriceLevel:     r.PriceLevel,
			Types:          r.Types,
			BusinessStatus: r.BusinessStatus,
			Lat:            r.Geometry.Location.Lat,
			Lng:            r.Geometry.Location.Lng,
		})
	}
	return candidates, nil
}

type detailResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Result       detailPayload `json:"result"`
}

type detailPayload struct {
	PlaceID              string  `json:"place_id"`
	Name                 string  `json:"name"`
	FormattedAddress     string  `json:"formatted_address"`
	FormattedPhoneNumber string  `json:"formatted_phone_number"`
	Website              string  `json:"website"`
	Rating               float64 `json:"rating"`
	UserRatingsTotal     int     `json:"user_ratings_total"`
	PriceLevel           int     `json:"price_level"`
	BusinessStatus       string  `json:"business_status"`
	URL                  string  `json:"url"`
	OpeningHours         *struct {
		OpenNow     *bool    `json:"open_now"`
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
	Reviews []struct {
		AuthorName              string  `json:"author_name"`
		Rating                  float64 `json:"rating"`
		Text                    string  `json:"text"`
		Time                    int64   `json:"time"`
		RelativeTimeDescription string  `json:"relative_time_description"`
	} `json:"reviews"`
	Photos []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

func (c *httpClient) Details(ctx context.Context, placeID string) (*Detail, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {detailFields},
		"key":      {c.apiKey},
	}

	var resp detailResponse
	if err := c.get(ctx, "/details/json", params, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		return nil, eris.Errorf("places: details status %s: %s", resp.Status, resp.ErrorMessage)
	}

	d := &Detail{
		PlaceID:        resp.Result.PlaceID,
		Name:           resp.Result.Name,
		Address:        resp.Result.FormattedAddress,
		Phone:          resp.Result.FormattedPhoneNumber,
		Website:        resp.Result.Website,
		Rating:         resp.Result.Rating,
		RatingCount:    resp.Result.UserRatingsTotal,
		PriceLevel:     resp.Result.PriceLevel,
		BusinessStatus: resp.Result.BusinessStatus,
		MapsURL:        resp.Result.URL,
	}
	if h := resp.Result.OpeningHours; h != nil {
		d.OpenNow = h.OpenNow
		d.WeekdayText = h.WeekdayText
	}
	for _, r := range resp.Result.Reviews {
		if len(d.Reviews) == 3 {
			break
		}
		d.Reviews = append(d.Reviews, Review{
			Author:       r.AuthorName,
			Rating:       r.Rating,
			Text:         r.Text,
			Time:         r.Time,
			RelativeTime: r.RelativeTimeDescription,
		})
	}
	for _, p := range resp.Result.Photos {
		if len(d.Photos) == 3 {
			break
		}
		d.Photos = append(d.Photos, c.photoURL(p.PhotoReference))
	}
	return d, nil
}

// photoURL builds a fetchable photo URL from a photo reference.
func (c *httpClient) photoURL(ref string) string {
	params := url.Values{
		"maxwidth":       {"400"},
		"photoreference": {ref},
		"key":            {c.apiKey},
	}
	return c.baseURL + "/photo?" + params.Encode()
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "places: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "places: unmarshal response")
	}
	return nil
}
