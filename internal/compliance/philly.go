package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propply/compliance-cli/internal/model"
	"github.com/propply/compliance-cli/internal/resilience"
	"github.com/propply/compliance-cli/pkg/carto"
)

// PhillyService generates compliance reports for Philadelphia properties
// from L&I open data via the Carto SQL API. Philadelphia has no
// BIN-equivalent identifier exposed there, so datasets key on the street
// address directly.
type PhillyService struct {
	carto      carto.Client
	store      ReportStore
	summarizer Summarizer
	retry      resilience.RetryConfig
	maxRows    int
	fetchLimit int
}

// PhillyOption configures a PhillyService.
type PhillyOption func(*PhillyService)

// WithPhillyStore enables report persistence.
func WithPhillyStore(store ReportStore) PhillyOption {
	return func(s *PhillyService) { s.store = store }
}

// WithPhillySummarizer enables AI summaries on generated reports.
func WithPhillySummarizer(sum Summarizer) PhillyOption {
	return func(s *PhillyService) { s.summarizer = sum }
}

// WithPhillyRetry sets the retry policy for Carto queries.
func WithPhillyRetry(cfg resilience.RetryConfig) PhillyOption {
	return func(s *PhillyService) { s.retry = cfg }
}

// WithPhillyLimits overrides the report row cap and fetch limit.
func WithPhillyLimits(maxRows, fetchLimit int) PhillyOption {
	return func(s *PhillyService) {
		s.maxRows = maxRows
		s.fetchLimit = fetchLimit
	}
}

// NewPhillyService creates a Philadelphia compliance report service.
func NewPhillyService(client carto.Client, opts ...PhillyOption) *PhillyService {
	s := &PhillyService{
		carto:      client,
		retry:      resilience.RetryConfig{MaxAttempts: 1},
		maxRows:    50,
		fetchLimit: 500,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// activeViolationStatuses are the L&I status values counted as open.
var activeViolationStatuses = map[string]bool{
	"OPEN":         true,
	"ACTIVE":       true,
	"IN VIOLATION": true,
}

// Generate collects L&I permits, code violations, and case investigations
// for an address and scores the property with the shared formula, using
// open L&I violations as the active violation count.
func (s *PhillyService) Generate(ctx context.Context, address string) (*model.ComplianceReport, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrPropertyNotFound
	}

	permits := s.query(ctx, "li_permits", fmt.Sprintf(
		"SELECT permitnumber, permittype, permitdescription, typeofwork, permitissuedate, status, address "+
			"FROM permits WHERE address ILIKE %s ORDER BY permitissuedate DESC LIMIT %d",
		quoteLike(address), s.fetchLimit))
	violations := s.query(ctx, "li_violations", fmt.Sprintf(
		"SELECT violationnumber, violationcodetitle, violationstatus AS status, violationdate, casenumber, address "+
			"FROM violations WHERE address ILIKE %s ORDER BY violationdate DESC LIMIT %d",
		quoteLike(address), s.fetchLimit))
	investigations := s.query(ctx, "li_investigations", fmt.Sprintf(
		"SELECT casenumber, casetype, casestatus, investigationcompleted, address "+
			"FROM case_investigations WHERE address ILIKE %s ORDER BY investigationcompleted DESC LIMIT %d",
		quoteLike(address), s.fetchLimit))

	active := 0
	for _, v := range violations {
		if status, ok := v["status"].(string); ok && activeViolationStatuses[strings.ToUpper(status)] {
			active++
		}
	}

	data := map[string][]map[string]any{
		"li_permits":        permits,
		"li_violations":     violations,
		"li_investigations": investigations,
	}

	report := &model.ComplianceReport{
		ID:      uuid.NewString(),
		Address: address,
		City:    "philadelphia",
		Property: model.PropertyIdentifiers{
			Address: address,
		},
		Scores:      CalculateScores(model.ViolationSnapshot{HPDViolationsActive: active}),
		Data:        truncateAll(data, s.maxRows),
		GeneratedAt: time.Now().UTC(),
	}
	attachSummary(ctx, s.summarizer, report)

	if s.store != nil {
		if err := s.store.SaveReport(ctx, report); err != nil {
			return nil, eris.Wrap(err, "compliance: save philly report")
		}
	}
	return report, nil
}

// query runs one Carto query; failures are logged and yield an empty
// dataset so one bad table does not fail the report.
func (s *PhillyService) query(ctx context.Context, name, sql string) []map[string]any {
	rows, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]map[string]any, error) {
		return s.carto.Query(ctx, sql)
	})
	if err != nil {
		zap.L().Warn("carto query failed", zap.String("dataset", name), zap.Error(err))
		return nil
	}
	zap.L().Debug("carto query complete", zap.String("dataset", name), zap.Int("rows", len(rows)))
	return rows
}

// quoteLike builds a quoted ILIKE prefix pattern, escaping embedded quotes.
func quoteLike(address string) string {
	escaped := strings.ReplaceAll(strings.TrimSpace(address), "'", "''")
	return "'" + escaped + "%'"
}
