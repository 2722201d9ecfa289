// Package store persists compliance reports, vendor work requests, and the
// search/geocode caches, backed by Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propply/compliance-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	City   string `json:"city,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// CachedLocation is a geocoder result kept in the geocode cache.
type CachedLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Matched   bool    `json:"matched"`
}

// Store defines the persistence interface for the compliance service.
type Store interface {
	// Reports
	SaveReport(ctx context.Context, report *model.ComplianceReport) error
	GetReport(ctx context.Context, id string) (*model.ComplianceReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.ComplianceReport, error)

	// Vendor search cache
	GetVendorSearch(ctx context.Context, key string) (*model.VendorSearchResult, bool, error)
	PutVendorSearch(ctx context.Context, key string, result *model.VendorSearchResult, ttl time.Duration) error
	DeleteExpiredVendorSearches(ctx context.Context) (int, error)

	// Geocode cache
	GetGeocode(ctx context.Context, addressKey string) (*CachedLocation, bool, error)
	PutGeocode(ctx context.Context, addressKey string, loc CachedLocation, ttl time.Duration) error

	// Vendor requests
	CreateVendorRequest(ctx context.Context, req model.VendorRequest) (*model.VendorRequest, error)
	UpdateVendorRequestStatus(ctx context.Context, id string, status model.RequestStatus) error
	ListVendorRequests(ctx context.Context, address string) ([]model.VendorRequest, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
