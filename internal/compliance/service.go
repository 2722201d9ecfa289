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
	"github.com/propply/compliance-cli/pkg/analysis"
	"github.com/propply/compliance-cli/pkg/geosearch"
	"github.com/propply/compliance-cli/pkg/opendata"
)

// ErrPropertyNotFound means the address could not be resolved to a building
// identifier, so no dataset lookups are possible.
var ErrPropertyNotFound = eris.New("compliance: property not found")

// ReportStore persists generated reports. A nil store disables persistence.
type ReportStore interface {
	SaveReport(ctx context.Context, report *model.ComplianceReport) error
}

// Summarizer produces an optional plain-language report summary.
type Summarizer interface {
	Summarize(ctx context.Context, in analysis.SummaryInput) (string, error)
}

// Service generates compliance reports for NYC properties.
type Service struct {
	geosearch  geosearch.Client
	opendata   opendata.Client
	store      ReportStore
	summarizer Summarizer
	retry      resilience.RetryConfig
	maxRows    int
	fetchLimit int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore enables report persistence.
func WithStore(store ReportStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithSummarizer enables AI summaries on generated reports.
func WithSummarizer(sum Summarizer) ServiceOption {
	return func(s *Service) { s.summarizer = sum }
}

// WithRetry sets the retry policy for dataset fetches.
func WithRetry(cfg resilience.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// WithLimits overrides the per-dataset report row cap and the upstream
// fetch limit.
func WithLimits(maxRows, fetchLimit int) ServiceOption {
	return func(s *Service) {
		s.maxRows = maxRows
		s.fetchLimit = fetchLimit
	}
}

// NewService creates a compliance report service.
func NewService(gs geosearch.Client, od opendata.Client, opts ...ServiceOption) *Service {
	s := &Service{
		geosearch:  gs,
		opendata:   od,
		retry:      resilience.RetryConfig{MaxAttempts: 1},
		maxRows:    50,
		fetchLimit: 500,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate resolves the address, collects violation data across all five
// datasets, scores the property, and assembles a report. A resolution
// failure is fatal; an individual dataset failure leaves that dataset
// empty.
func (s *Service) Generate(ctx context.Context, address string) (*model.ComplianceReport, error) {
	prop, err := s.geosearch.Lookup(ctx, address)
	if err != nil {
		if eris.Is(err, geosearch.ErrNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, eris.Wrapf(err, "compliance: resolve %s", address)
	}
	if prop.BIN == "" {
		zap.L().Warn("property resolved without BIN", zap.String("address", address))
		return nil, ErrPropertyNotFound
	}

	ids := model.PropertyIdentifiers{
		BIN:     prop.BIN,
		BBL:     prop.BBL,
		Borough: prop.Borough,
		Block:   prop.Block,
		Lot:     prop.Lot,
		Address: prop.Address,
	}
	zap.L().Info("property resolved",
		zap.String("address", address),
		zap.String("bin", ids.BIN),
		zap.String("bbl", ids.BBL),
	)

	data := map[string][]map[string]any{
		"hpd_violations":     s.fetchDataset(ctx, opendata.DatasetHPDViolations, hpdStrategies(ids)),
		"dob_violations":     s.fetchDataset(ctx, opendata.DatasetDOBViolations, dobStrategies(ids)),
		"elevator_data":      s.fetchDataset(ctx, opendata.DatasetElevatorInspections, elevatorStrategies(ids)),
		"boiler_data":        s.fetchDataset(ctx, opendata.DatasetBoilerInspections, boilerStrategies(ids)),
		"electrical_permits": s.fetchDataset(ctx, opendata.DatasetElectricalPermits, electricalStrategies(ids)),
	}

	scores := CalculateScores(model.ViolationSnapshot{
		HPDViolationsActive: len(data["hpd_violations"]),
		DOBViolationsActive: len(data["dob_violations"]),
		ElevatorDevices:     len(data["elevator_data"]),
		BoilerDevices:       len(data["boiler_data"]),
		ElectricalPermits:   len(data["electrical_permits"]),
	})

	report := &model.ComplianceReport{
		ID:          uuid.NewString(),
		Address:     address,
		City:        "nyc",
		Property:    ids,
		Scores:      scores,
		Data:        truncateAll(data, s.maxRows),
		GeneratedAt: time.Now().UTC(),
	}
	attachSummary(ctx, s.summarizer, report)

	if s.store != nil {
		if err := s.store.SaveReport(ctx, report); err != nil {
			return nil, eris.Wrap(err, "compliance: save report")
		}
	}
	return report, nil
}

// strategy is one dataset query attempt. Strategies run in order until one
// returns rows; looser keys (block/lot) are re-filtered by BIN afterwards
// because a tax block spans multiple buildings.
type strategy struct {
	name        string
	where       string
	refilterBIN string
}

func hpdStrategies(ids model.PropertyIdentifiers) []strategy {
	var out []strategy
	if ids.BIN != "" {
		out = append(out, strategy{"BIN", fmt.Sprintf("bin = '%s' AND violationstatus = 'Open'", ids.BIN), ""})
	}
	if ids.BBL != "" {
		out = append(out, strategy{"BBL", fmt.Sprintf("bbl = '%s' AND violationstatus = 'Open'", ids.BBL), ""})
	}
	if ids.Block != "" && ids.Lot != "" {
		out = append(out, strategy{"Block/Lot", fmt.Sprintf("block = '%s' AND lot = '%s' AND violationstatus = 'Open'", ids.Block, ids.Lot), ""})
	}
	return out
}

func dobStrategies(ids model.PropertyIdentifiers) []strategy {
	var out []strategy
	if ids.BIN != "" {
		out = append(out, strategy{"BIN", fmt.Sprintf("bin = '%s' AND violation_category LIKE '%%ACTIVE%%'", ids.BIN), ""})
	}
	if ids.BBL != "" {
		out = append(out, strategy{"BBL", fmt.Sprintf("bbl = '%s' AND violation_category LIKE '%%ACTIVE%%'", ids.BBL), ""})
	}
	if ids.Block != "" && ids.Lot != "" {
		out = append(out, strategy{"Block/Lot", fmt.Sprintf("block = '%s' AND lot = '%s' AND violation_category LIKE '%%ACTIVE%%'", ids.Block, ids.Lot), ids.BIN})
	}
	return out
}

func elevatorStrategies(ids model.PropertyIdentifiers) []strategy {
	var out []strategy
	if ids.BIN != "" {
		out = append(out, strategy{"BIN", fmt.Sprintf("bin = '%s'", ids.BIN), ""})
	}
	if ids.Block != "" && ids.Lot != "" {
		out = append(out, strategy{"Block/Lot", fmt.Sprintf("block = '%s' AND lot = '%s'", ids.Block, ids.Lot), ids.BIN})
	}
	return out
}

// The boiler dataset keys on bin_number only; there is no block/lot column.
func boilerStrategies(ids model.PropertyIdentifiers) []strategy {
	if ids.BIN == "" {
		return nil
	}
	return []strategy{{"BIN", fmt.Sprintf("bin_number = '%s'", ids.BIN), ""}}
}

func electricalStrategies(ids model.PropertyIdentifiers) []strategy {
	var out []strategy
	if ids.BIN != "" {
		out = append(out, strategy{"BIN", fmt.Sprintf("bin = '%s'", ids.BIN), ""})
	}
	if ids.Block != "" && ids.Borough != "" {
		out = append(out, strategy{"Borough/Block",
			fmt.Sprintf("borough = '%s' AND block = '%s'", strings.ToUpper(ids.Borough), ids.Block), ids.BIN})
	}
	return out
}

// fetchDataset tries each strategy in order and returns the first non-empty
// result. Failed strategies are logged and skipped; an exhausted strategy
// list yields an empty dataset, not an error.
func (s *Service) fetchDataset(ctx context.Context, dataset opendata.Dataset, strategies []strategy) []map[string]any {
	for _, st := range strategies {
		rows, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]map[string]any, error) {
			return s.opendata.Fetch(ctx, dataset, opendata.Query{Where: st.where, Limit: s.fetchLimit})
		})
		if err != nil {
			zap.L().Warn("dataset strategy failed",
				zap.String("dataset", string(dataset)),
				zap.String("strategy", st.name),
				zap.Error(err),
			)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if st.refilterBIN != "" {
			rows = filterByBIN(rows, st.refilterBIN)
			if len(rows) == 0 {
				continue
			}
		}
		zap.L().Info("dataset fetched",
			zap.String("dataset", string(dataset)),
			zap.String("strategy", st.name),
			zap.Int("rows", len(rows)),
		)
		return rows
	}
	return nil
}

func filterByBIN(rows []map[string]any, bin string) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		if v, ok := row["bin"].(string); ok && v == bin {
			out = append(out, row)
		}
	}
	return out
}

func truncateAll(data map[string][]map[string]any, max int) map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(data))
	for name, rows := range data {
		if len(rows) > max {
			rows = rows[:max]
		}
		out[name] = rows
	}
	return out
}

// attachSummary adds an AI summary when a summarizer is configured.
// Summary failures never fail the report.
func attachSummary(ctx context.Context, sum Summarizer, report *model.ComplianceReport) {
	if sum == nil {
		return
	}
	summary, err := sum.Summarize(ctx, analysis.SummaryInput{
		Address:      report.Address,
		City:         report.City,
		HPDScore:     report.Scores.HPDScore,
		DOBScore:     report.Scores.DOBScore,
		OverallScore: report.Scores.OverallScore,
		Datasets:     report.Data,
	})
	if err != nil {
		zap.L().Warn("report summary failed", zap.String("report_id", report.ID), zap.Error(err))
		return
	}
	report.Summary = summary
}
