package compliance

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/propply/compliance-cli/internal/model"
	"github.com/propply/compliance-cli/pkg/analysis"
	"github.com/propply/compliance-cli/pkg/carto"
	"github.com/propply/compliance-cli/pkg/geosearch"
	"github.com/propply/compliance-cli/pkg/opendata"
)

// --- GeoSearch Mock ---

type mockGeoSearchClient struct {
	mock.Mock
}

func (m *mockGeoSearchClient) Lookup(ctx context.Context, address string) (*geosearch.Property, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geosearch.Property), args.Error(1)
}

// --- Open Data Mock ---

type mockOpenDataClient struct {
	mock.Mock
}

func (m *mockOpenDataClient) Fetch(ctx context.Context, dataset opendata.Dataset, q opendata.Query) ([]map[string]any, error) {
	args := m.Called(ctx, dataset, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

// --- Carto Mock ---

type mockCartoClient struct {
	mock.Mock
}

func (m *mockCartoClient) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	args := m.Called(ctx, sql)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

// --- Store Mock ---

type mockReportStore struct {
	mock.Mock
}

func (m *mockReportStore) SaveReport(ctx context.Context, report *model.ComplianceReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// --- Summarizer Mock ---

type mockSummarizer struct {
	mock.Mock
}

func (m *mockSummarizer) Summarize(ctx context.Context, in analysis.SummaryInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

var (
	_ geosearch.Client = (*mockGeoSearchClient)(nil)
	_ opendata.Client  = (*mockOpenDataClient)(nil)
	_ carto.Client     = (*mockCartoClient)(nil)
	_ ReportStore      = (*mockReportStore)(nil)
	_ Summarizer       = (*mockSummarizer)(nil)
)
