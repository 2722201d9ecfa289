package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/propply/compliance-cli/internal/model"
)

// SQLiteStore implements Store using a local SQLite database, for
// single-user CLI runs that should not require a Postgres server.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) a SQLite database at the given path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	// WAL lets the serve command read reports while a generate is writing.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS compliance_reports (
	id           TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	city         TEXT NOT NULL,
	property     TEXT NOT NULL,
	scores       TEXT NOT NULL,
	data         TEXT NOT NULL,
	summary      TEXT,
	generated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_address ON compliance_reports(address);
CREATE INDEX IF NOT EXISTS idx_reports_city ON compliance_reports(city);

CREATE TABLE IF NOT EXISTS vendor_search_cache (
	id         TEXT PRIMARY KEY,
	search_key TEXT NOT NULL UNIQUE,
	payload    TEXT NOT NULL,
	cached_at  TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendor_search_cache_expires_at ON vendor_search_cache(expires_at);

CREATE TABLE IF NOT EXISTS geocode_cache (
	id          TEXT PRIMARY KEY,
	address_key TEXT NOT NULL UNIQUE,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	matched     INTEGER NOT NULL,
	cached_at   TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS vendor_requests (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	category    TEXT NOT NULL,
	place_id    TEXT NOT NULL,
	vendor_name TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendor_requests_address ON vendor_requests(address);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.ComplianceReport) error {
	propertyJSON, err := json.Marshal(report.Property)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal property")
	}
	scoresJSON, err := json.Marshal(report.Scores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scores")
	}
	dataJSON, err := json.Marshal(report.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO compliance_reports (id, address, city, property, scores, data, summary, generated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Address, report.City, string(propertyJSON), string(scoresJSON), string(dataJSON), report.Summary, report.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert report %s", report.ID)
}

func (s *SQLiteStore) scanReport(row scannable) (*model.ComplianceReport, error) {
	var r model.ComplianceReport
	var propertyJSON, scoresJSON, dataJSON string
	var summary sql.NullString

	err := row.Scan(&r.ID, &r.Address, &r.City, &propertyJSON, &scoresJSON, &dataJSON, &summary, &r.GeneratedAt)
	if err != nil {
		return nil, err
	}
	r.Summary = summary.String

	if err := unmarshalReport(&r, []byte(propertyJSON), []byte(scoresJSON), []byte(dataJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &r, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.ComplianceReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, city, property, scores, data, summary, generated_at FROM compliance_reports WHERE id = ?`,
		id,
	)
	r, err := s.scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get report %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.ComplianceReport, error) {
	query := `SELECT id, address, city, property, scores, data, summary, generated_at FROM compliance_reports WHERE 1=1`
	args := []any{}

	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	query += ` ORDER BY generated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.ComplianceReport
	for rows.Next() {
		r, err := s.scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) GetVendorSearch(ctx context.Context, key string) (*model.VendorSearchResult, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM vendor_search_cache
		 WHERE search_key = ? AND expires_at > ?
		 ORDER BY cached_at DESC LIMIT 1`,
		key, time.Now().UTC(),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "sqlite: get vendor search")
	}

	var result model.VendorSearchResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: unmarshal vendor search")
	}
	return &result, true, nil
}

func (s *SQLiteStore) PutVendorSearch(ctx context.Context, key string, result *model.VendorSearchResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vendor search")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vendor_search_cache (id, search_key, payload, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (search_key) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		uuid.New().String(), key, string(payload), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: put vendor search")
}

func (s *SQLiteStore) DeleteExpiredVendorSearches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vendor_search_cache WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired vendor searches")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) GetGeocode(ctx context.Context, addressKey string) (*CachedLocation, bool, error) {
	var loc CachedLocation
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, matched FROM geocode_cache
		 WHERE address_key = ? AND expires_at > ?
		 ORDER BY cached_at DESC LIMIT 1`,
		addressKey, time.Now().UTC(),
	).Scan(&loc.Latitude, &loc.Longitude, &loc.Matched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "sqlite: get geocode")
	}
	return &loc, true, nil
}

func (s *SQLiteStore) PutGeocode(ctx context.Context, addressKey string, loc CachedLocation, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (id, address_key, latitude, longitude, matched, cached_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (address_key) DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude, matched = excluded.matched, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		uuid.New().String(), addressKey, loc.Latitude, loc.Longitude, loc.Matched, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: put geocode")
}

func (s *SQLiteStore) CreateVendorRequest(ctx context.Context, req model.VendorRequest) (*model.VendorRequest, error) {
	req.ID = uuid.New().String()
	if req.Status == "" {
		req.Status = model.RequestStatusOpen
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendor_requests (id, address, category, place_id, vendor_name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Address, req.Category, req.PlaceID, req.VendorName, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert vendor request")
	}
	return &req, nil
}

func (s *SQLiteStore) UpdateVendorRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vendor_requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update vendor request %s", id)
	}
	return checkRowsAffected(res, "vendor request", id)
}

func (s *SQLiteStore) ListVendorRequests(ctx context.Context, address string) ([]model.VendorRequest, error) {
	query := `SELECT id, address, category, place_id, vendor_name, status, created_at, updated_at FROM vendor_requests WHERE 1=1`
	args := []any{}
	if address != "" {
		query += ` AND address = ?`
		args = append(args, address)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendor requests")
	}
	defer rows.Close()

	var reqs []model.VendorRequest
	for rows.Next() {
		var r model.VendorRequest
		if err := rows.Scan(&r.ID, &r.Address, &r.Category, &r.PlaceID, &r.VendorName, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor request")
		}
		reqs = append(reqs, r)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: list vendor requests iterate")
}
