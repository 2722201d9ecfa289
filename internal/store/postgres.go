package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/propply/compliance-cli/internal/db"
	"github.com/propply/compliance-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_report":      `INSERT INTO compliance_reports (id, address, city, property, scores, data, summary, generated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_report":         `SELECT id, address, city, property, scores, data, summary, generated_at FROM compliance_reports WHERE id = $1`,
	"get_vendor_search":  `SELECT payload FROM vendor_search_cache WHERE search_key = $1 AND expires_at > now() ORDER BY cached_at DESC LIMIT 1`,
	"put_vendor_search":  `INSERT INTO vendor_search_cache (id, search_key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (search_key) DO UPDATE SET payload = $3, cached_at = $4, expires_at = $5`,
	"get_geocode":        `SELECT latitude, longitude, matched FROM geocode_cache WHERE address_key = $1 AND expires_at > now() ORDER BY cached_at DESC LIMIT 1`,
	"put_geocode":        `INSERT INTO geocode_cache (id, address_key, latitude, longitude, matched, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (address_key) DO UPDATE SET latitude = $3, longitude = $4, matched = $5, cached_at = $6, expires_at = $7`,
	"insert_request":     `INSERT INTO vendor_requests (id, address, category, place_id, vendor_name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"update_request":     `UPDATE vendor_requests SET status = $1, updated_at = $2 WHERE id = $3`,
	"delete_expired_vsc": `DELETE FROM vendor_search_cache WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS compliance_reports (
	id           TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	city         TEXT NOT NULL,
	property     JSONB NOT NULL,
	scores       JSONB NOT NULL,
	data         JSONB NOT NULL,
	summary      TEXT,
	generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_address ON compliance_reports(address);
CREATE INDEX IF NOT EXISTS idx_reports_city ON compliance_reports(city);
CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON compliance_reports(generated_at DESC);

CREATE TABLE IF NOT EXISTS vendor_search_cache (
	id         TEXT PRIMARY KEY,
	search_key TEXT NOT NULL UNIQUE,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendor_search_cache_key ON vendor_search_cache(search_key);
CREATE INDEX IF NOT EXISTS idx_vendor_search_cache_expires_at ON vendor_search_cache(expires_at);

CREATE TABLE IF NOT EXISTS geocode_cache (
	id          TEXT PRIMARY KEY,
	address_key TEXT NOT NULL UNIQUE,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	matched     BOOLEAN NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_key ON geocode_cache(address_key);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);

CREATE TABLE IF NOT EXISTS vendor_requests (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	category    TEXT NOT NULL,
	place_id    TEXT NOT NULL,
	vendor_name TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_vendor_requests_address ON vendor_requests(address);
CREATE INDEX IF NOT EXISTS idx_vendor_requests_status ON vendor_requests(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, report *model.ComplianceReport) error {
	propertyJSON, err := json.Marshal(report.Property)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal property")
	}
	scoresJSON, err := json.Marshal(report.Scores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scores")
	}
	dataJSON, err := json.Marshal(report.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO compliance_reports (id, address, city, property, scores, data, summary, generated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.Address, report.City, propertyJSON, scoresJSON, dataJSON, report.Summary, report.GeneratedAt,
	)
	return eris.Wrapf(err, "postgres: insert report %s", report.ID)
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.ComplianceReport, error) {
	var r model.ComplianceReport
	var propertyJSON, scoresJSON, dataJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, address, city, property, scores, data, summary, generated_at FROM compliance_reports WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Address, &r.City, &propertyJSON, &scoresJSON, &dataJSON, &r.Summary, &r.GeneratedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}

	if err := unmarshalReport(&r, propertyJSON, scoresJSON, dataJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.ComplianceReport, error) {
	query := `SELECT id, address, city, property, scores, data, summary, generated_at FROM compliance_reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.City != "" {
		query += fmt.Sprintf(` AND city = $%d`, argIdx)
		args = append(args, filter.City)
		argIdx++
	}
	query += ` ORDER BY generated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.ComplianceReport
	for rows.Next() {
		var r model.ComplianceReport
		var propertyJSON, scoresJSON, dataJSON []byte

		if err := rows.Scan(&r.ID, &r.Address, &r.City, &propertyJSON, &scoresJSON, &dataJSON, &r.Summary, &r.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		if err := unmarshalReport(&r, propertyJSON, scoresJSON, dataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) GetVendorSearch(ctx context.Context, key string) (*model.VendorSearchResult, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM vendor_search_cache
		 WHERE search_key = $1 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		key,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get vendor search")
	}

	var result model.VendorSearchResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, eris.Wrap(err, "postgres: unmarshal vendor search")
	}
	return &result, true, nil
}

func (s *PostgresStore) PutVendorSearch(ctx context.Context, key string, result *model.VendorSearchResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vendor search")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO vendor_search_cache (id, search_key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (search_key) DO UPDATE SET payload = $3, cached_at = $4, expires_at = $5`,
		uuid.New().String(), key, payload, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: put vendor search")
}

func (s *PostgresStore) DeleteExpiredVendorSearches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vendor_search_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired vendor searches")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetGeocode(ctx context.Context, addressKey string) (*CachedLocation, bool, error) {
	var loc CachedLocation
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude, matched FROM geocode_cache
		 WHERE address_key = $1 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		addressKey,
	).Scan(&loc.Latitude, &loc.Longitude, &loc.Matched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get geocode")
	}
	return &loc, true, nil
}

func (s *PostgresStore) PutGeocode(ctx context.Context, addressKey string, loc CachedLocation, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (id, address_key, latitude, longitude, matched, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (address_key) DO UPDATE SET latitude = $3, longitude = $4, matched = $5, cached_at = $6, expires_at = $7`,
		uuid.New().String(), addressKey, loc.Latitude, loc.Longitude, loc.Matched, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: put geocode")
}

func (s *PostgresStore) CreateVendorRequest(ctx context.Context, req model.VendorRequest) (*model.VendorRequest, error) {
	req.ID = uuid.New().String()
	if req.Status == "" {
		req.Status = model.RequestStatusOpen
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendor_requests (id, address, category, place_id, vendor_name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.Address, req.Category, req.PlaceID, req.VendorName, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert vendor request")
	}
	return &req, nil
}

func (s *PostgresStore) UpdateVendorRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vendor_requests SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update vendor request %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListVendorRequests(ctx context.Context, address string) ([]model.VendorRequest, error) {
	query := `SELECT id, address, category, place_id, vendor_name, status, created_at, updated_at FROM vendor_requests WHERE true`
	args := []any{}
	if address != "" {
		query += ` AND address = $1`
		args = append(args, address)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendor requests")
	}
	defer rows.Close()

	var reqs []model.VendorRequest
	for rows.Next() {
		var r model.VendorRequest
		if err := rows.Scan(&r.ID, &r.Address, &r.Category, &r.PlaceID, &r.VendorName, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor request")
		}
		reqs = append(reqs, r)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: list vendor requests iterate")
}

func unmarshalReport(r *model.ComplianceReport, propertyJSON, scoresJSON, dataJSON []byte) error {
	if err := json.Unmarshal(propertyJSON, &r.Property); err != nil {
		return eris.Wrap(err, "property")
	}
	if err := json.Unmarshal(scoresJSON, &r.Scores); err != nil {
		return eris.Wrap(err, "scores")
	}
	if err := json.Unmarshal(dataJSON, &r.Data); err != nil {
		return eris.Wrap(err, "data")
	}
	return nil
}
