package compliance

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/propply/compliance-cli/internal/model"
	"github.com/propply/compliance-cli/pkg/geosearch"
	"github.com/propply/compliance-cli/pkg/opendata"
)

var testProperty = &geosearch.Property{
	BIN:     "1015862",
	BBL:     "1008030060",
	Borough: "Manhattan",
	Block:   "803",
	Lot:     "60",
	Address: "140 West 28 Street",
}

func matchWhere(where string) any {
	return mock.MatchedBy(func(q opendata.Query) bool { return q.Where == where })
}

// emptyOtherDatasets stubs zero rows for every dataset query not covered by
// a more specific expectation.
func emptyOtherDatasets(od *mockOpenDataClient) {
	od.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
}

func TestGenerateBINStrategy(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, "140 West 28 Street, Manhattan").Return(testProperty, nil)

	od := &mockOpenDataClient{}
	od.On("Fetch", mock.Anything, opendata.DatasetHPDViolations,
		matchWhere("bin = '1015862' AND violationstatus = 'Open'")).
		Return([]map[string]any{
			{"violationid": "1", "violationstatus": "Open"},
			{"violationid": "2", "violationstatus": "Open"},
		}, nil)
	od.On("Fetch", mock.Anything, opendata.DatasetDOBViolations,
		matchWhere("bin = '1015862' AND violation_category LIKE '%ACTIVE%'")).
		Return([]map[string]any{{"number": "d1"}}, nil)
	od.On("Fetch", mock.Anything, opendata.DatasetBoilerInspections,
		matchWhere("bin_number = '1015862'")).
		Return([]map[string]any{{"tracking_number": "b1"}}, nil)
	emptyOtherDatasets(od)

	svc := NewService(gs, od)
	report, err := svc.Generate(context.Background(), "140 West 28 Street, Manhattan")
	require.NoError(t, err)

	assert.Equal(t, "nyc", report.City)
	assert.Equal(t, "1015862", report.Property.BIN)
	assert.Equal(t, "803", report.Property.Block)
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.GeneratedAt.IsZero())

	assert.Equal(t, 2, report.Scores.Snapshot.HPDViolationsActive)
	assert.Equal(t, 1, report.Scores.Snapshot.DOBViolationsActive)
	assert.Equal(t, 1, report.Scores.Snapshot.BoilerDevices)
	assert.Equal(t, 80.0, report.Scores.HPDScore)
	assert.Equal(t, 85.0, report.Scores.DOBScore)
	assert.Equal(t, 82.5, report.Scores.OverallScore)
	assert.Len(t, report.Data["hpd_violations"], 2)
}

func TestGenerateFallsBackToBBL(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, mock.Anything).Return(testProperty, nil)

	od := &mockOpenDataClient{}
	// BIN strategy errors, BBL strategy succeeds.
	od.On("Fetch", mock.Anything, opendata.DatasetHPDViolations,
		matchWhere("bin = '1015862' AND violationstatus = 'Open'")).
		Return(nil, eris.New("opendata: unexpected status 400"))
	od.On("Fetch", mock.Anything, opendata.DatasetHPDViolations,
		matchWhere("bbl = '1008030060' AND violationstatus = 'Open'")).
		Return([]map[string]any{{"violationid": "1"}}, nil)
	emptyOtherDatasets(od)

	svc := NewService(gs, od)
	report, err := svc.Generate(context.Background(), "140 West 28 Street")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scores.Snapshot.HPDViolationsActive)
}

func TestGenerateBlockLotRefilteredByBIN(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, mock.Anything).Return(testProperty, nil)

	od := &mockOpenDataClient{}
	// BIN and BBL find nothing; block/lot returns rows from two buildings.
	od.On("Fetch", mock.Anything, opendata.DatasetDOBViolations,
		matchWhere("block = '803' AND lot = '60' AND violation_category LIKE '%ACTIVE%'")).
		Return([]map[string]any{
			{"number": "keep", "bin": "1015862"},
			{"number": "drop", "bin": "1099999"},
		}, nil)
	emptyOtherDatasets(od)

	svc := NewService(gs, od)
	report, err := svc.Generate(context.Background(), "140 West 28 Street")
	require.NoError(t, err)

	require.Len(t, report.Data["dob_violations"], 1)
	assert.Equal(t, "keep", report.Data["dob_violations"][0]["number"])
}

func TestGeneratePropertyNotFound(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, "nowhere").Return(nil, geosearch.ErrNotFound)

	svc := NewService(gs, &mockOpenDataClient{})
	_, err := svc.Generate(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestGenerateMissingBIN(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, mock.Anything).
		Return(&geosearch.Property{BBL: "1008030060"}, nil)

	svc := NewService(gs, &mockOpenDataClient{})
	_, err := svc.Generate(context.Background(), "somewhere")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestGenerateTruncatesRows(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, mock.Anything).Return(testProperty, nil)

	var rows []map[string]any
	for i := 0; i < 80; i++ {
		rows = append(rows, map[string]any{"violationid": fmt.Sprintf("%d", i)})
	}
	od := &mockOpenDataClient{}
	od.On("Fetch", mock.Anything, opendata.DatasetHPDViolations, mock.Anything).Return(rows, nil)
	emptyOtherDatasets(od)

	svc := NewService(gs, od)
	report, err := svc.Generate(context.Background(), "140 West 28 Street")
	require.NoError(t, err)

	// The score reflects all 80 rows even though the report keeps 50.
	assert.Equal(t, 80, report.Scores.Snapshot.HPDViolationsActive)
	assert.Len(t, report.Data["hpd_violations"], 50)
	assert.Equal(t, 0.0, report.Scores.HPDScore)
}

func TestGenerateSavesReportAndSummary(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, mock.Anything).Return(testProperty, nil)

	od := &mockOpenDataClient{}
	emptyOtherDatasets(od)

	sum := &mockSummarizer{}
	sum.On("Summarize", mock.Anything, mock.Anything).Return("All clear.", nil)

	store := &mockReportStore{}
	store.On("SaveReport", mock.Anything, mock.MatchedBy(func(r *model.ComplianceReport) bool {
		return r.Summary == "All clear." && r.Scores.OverallScore == 100.0
	})).Return(nil)

	svc := NewService(gs, od, WithStore(store), WithSummarizer(sum))
	_, err := svc.Generate(context.Background(), "140 West 28 Street")
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestGenerateSummaryFailureDoesNotFailReport(t *testing.T) {
	gs := &mockGeoSearchClient{}
	gs.On("Lookup", mock.Anything, mock.Anything).Return(testProperty, nil)

	od := &mockOpenDataClient{}
	emptyOtherDatasets(od)

	sum := &mockSummarizer{}
	sum.On("Summarize", mock.Anything, mock.Anything).Return("", eris.New("overloaded"))

	svc := NewService(gs, od, WithSummarizer(sum))
	report, err := svc.Generate(context.Background(), "140 West 28 Street")
	require.NoError(t, err)
	assert.Empty(t, report.Summary)
}
