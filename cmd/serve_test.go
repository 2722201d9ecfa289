package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/propply/compliance-cli/internal/compliance"
	"github.com/propply/compliance-cli/internal/model"
	"github.com/propply/compliance-cli/internal/store"
)

type testAPI struct {
	api    *api
	nyc    *mockGenerator
	philly *mockGenerator
	finder *mockFinder
	store  *mockAPIStore
}

func newTestAPI() *testAPI {
	t := &testAPI{
		nyc:    new(mockGenerator),
		philly: new(mockGenerator),
		finder: new(mockFinder),
		store:  new(mockAPIStore),
	}
	t.api = &api{
		nyc:     t.nyc,
		philly:  t.philly,
		finder:  t.finder,
		store:   t.store,
		origins: []string{"*"},
	}
	return t
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ta.api.router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	ta := newTestAPI()

	rec := ta.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGenerateRoutesNYC(t *testing.T) {
	ta := newTestAPI()
	report := &model.ComplianceReport{ID: "rep-1", Address: "140 West 30th Street", City: "nyc"}
	ta.nyc.On("Generate", mock.Anything, "140 West 30th Street").Return(report, nil)

	rec := ta.do(t, http.MethodPost, "/api/compliance/generate",
		map[string]string{"address": "140 West 30th Street"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var got model.ComplianceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "rep-1", got.ID)
	ta.nyc.AssertExpectations(t)
	ta.philly.AssertNotCalled(t, "Generate")
}

func TestGenerateRoutesPhiladelphia(t *testing.T) {
	ta := newTestAPI()
	report := &model.ComplianceReport{ID: "rep-2", City: "philadelphia"}
	ta.philly.On("Generate", mock.Anything, "1400 JFK Blvd").Return(report, nil)

	rec := ta.do(t, http.MethodPost, "/api/compliance/generate",
		map[string]string{"address": "1400 JFK Blvd", "city": "philadelphia"})

	assert.Equal(t, http.StatusOK, rec.Code)
	ta.philly.AssertExpectations(t)
	ta.nyc.AssertNotCalled(t, "Generate")
}

func TestGenerateValidation(t *testing.T) {
	ta := newTestAPI()

	rec := ta.do(t, http.MethodPost, "/api/compliance/generate", map[string]string{"address": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(t, http.MethodPost, "/api/compliance/generate",
		map[string]string{"address": "1 Main St", "city": "boston"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneratePropertyNotFound(t *testing.T) {
	ta := newTestAPI()
	ta.nyc.On("Generate", mock.Anything, "999 Nowhere St").
		Return(nil, compliance.ErrPropertyNotFound)

	rec := ta.do(t, http.MethodPost, "/api/compliance/generate",
		map[string]string{"address": "999 Nowhere St"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReport(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("GetReport", mock.Anything, "rep-1").
		Return(&model.ComplianceReport{ID: "rep-1"}, nil)

	rec := ta.do(t, http.MethodGet, "/api/reports/rep-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetReportNotFound(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("GetReport", mock.Anything, "missing").Return(nil, store.ErrNotFound)

	rec := ta.do(t, http.MethodGet, "/api/reports/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReports(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("ListReports", mock.Anything, store.ReportFilter{City: "nyc", Limit: 10}).
		Return([]model.ComplianceReport{{ID: "rep-1"}}, nil)

	rec := ta.do(t, http.MethodGet, "/api/reports?city=nyc&limit=10", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Reports []model.ComplianceReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Reports, 1)
}

func TestListReportsInvalidLimit(t *testing.T) {
	ta := newTestAPI()

	rec := ta.do(t, http.MethodGet, "/api/reports?limit=abc", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportReport(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("GetReport", mock.Anything, "rep-1").
		Return(&model.ComplianceReport{
			ID:      "rep-1",
			Address: "140 West 30th Street",
			City:    "nyc",
			Data: map[string][]map[string]any{
				"hpd_violations": {{"violationid": "123"}},
			},
		}, nil)

	rec := ta.do(t, http.MethodGet, "/api/reports/rep-1/export", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report-rep-1.xlsx")

	f, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	assert.NotNil(t, f.Sheet["Summary"])
	assert.NotNil(t, f.Sheet["hpd_violations"])
}

func TestExportReportWithVendors(t *testing.T) {
	ta := newTestAPI()
	snap := model.ViolationSnapshot{HPDViolationsActive: 2}
	ta.store.On("GetReport", mock.Anything, "rep-1").
		Return(&model.ComplianceReport{
			ID:      "rep-1",
			Address: "140 West 30th Street",
			City:    "nyc",
			Scores:  model.ComplianceScores{Snapshot: snap},
		}, nil)
	ta.finder.On("FindWithRadius", mock.Anything, "140 West 30th Street", snap, 0.0).
		Return(&model.VendorSearchResult{
			ContractorsNeeded: true,
			Vendors: map[string][]model.Vendor{
				"hpd": {{Name: "Acme Violation Removal", DistanceMiles: 2.3}},
			},
			TotalVendors: 1,
		}, nil)

	rec := ta.do(t, http.MethodGet, "/api/reports/rep-1/export?vendors=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	f, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	require.NotNil(t, f.Sheet["Vendors"])
	assert.Equal(t, "Acme Violation Removal", f.Sheet["Vendors"].Rows[1].Cells[1].String())
	ta.finder.AssertExpectations(t)
}

func TestVendorSearch(t *testing.T) {
	ta := newTestAPI()
	snap := model.ViolationSnapshot{HPDViolationsActive: 2}
	result := &model.VendorSearchResult{
		ContractorsNeeded: true,
		Categories:        []string{"hpd", "fire_safety"},
		TotalVendors:      3,
	}
	ta.finder.On("FindWithRadius", mock.Anything, "140 West 30th Street", snap, 5.0).
		Return(result, nil)

	rec := ta.do(t, http.MethodPost, "/api/vendors/search", map[string]any{
		"address":      "140 West 30th Street",
		"snapshot":     map[string]int{"hpd_violations_active": 2},
		"radius_miles": 5.0,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var got model.VendorSearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalVendors)
	ta.finder.AssertExpectations(t)
}

func TestVendorSearchRequiresAddress(t *testing.T) {
	ta := newTestAPI()

	rec := ta.do(t, http.MethodPost, "/api/vendors/search", map[string]any{"snapshot": map[string]int{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateVendorRequest(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("CreateVendorRequest", mock.Anything, mock.MatchedBy(func(req model.VendorRequest) bool {
		return req.PlaceID == "p1" && req.Address == "140 West 30th Street"
	})).Return(&model.VendorRequest{ID: "req-1", Status: model.RequestStatusOpen}, nil)

	rec := ta.do(t, http.MethodPost, "/api/vendors/requests", map[string]string{
		"address":     "140 West 30th Street",
		"category":    "hpd",
		"place_id":    "p1",
		"vendor_name": "Acme Violation Removal",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUpdateVendorRequestStatus(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("UpdateVendorRequestStatus", mock.Anything, "req-1", model.RequestStatusContacted).
		Return(nil)

	rec := ta.do(t, http.MethodPatch, "/api/vendors/requests/req-1",
		map[string]string{"status": "contacted"})

	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(t, http.MethodPatch, "/api/vendors/requests/req-1",
		map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListVendorRequests(t *testing.T) {
	ta := newTestAPI()
	ta.store.On("ListVendorRequests", mock.Anything, "140 West 30th Street").
		Return([]model.VendorRequest{{ID: "req-1"}}, nil)

	rec := ta.do(t, http.MethodGet, "/api/vendors/requests?address=140+West+30th+Street", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Requests []model.VendorRequest `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Requests, 1)
}
