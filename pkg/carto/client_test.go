package carto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propply/compliance-cli/internal/resilience"
)

func TestQuerySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SELECT * FROM violations WHERE address = '123 MARKET ST' LIMIT 50", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{
			"rows": [
				{"violationnumber": "CF-2023-001", "violationstatus": "OPEN"},
				{"violationnumber": "CF-2023-002", "violationstatus": "CLOSED"}
			],
			"time": 0.021,
			"total_rows": 2
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	rows, err := c.Query(context.Background(), "SELECT * FROM violations WHERE address = '123 MARKET ST' LIMIT 50")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "OPEN", rows[0]["violationstatus"])
}

func TestQueryEmptyRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rows": [], "time": 0.004, "total_rows": 0}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	rows, err := c.Query(context.Background(), "SELECT 1 WHERE false")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQuerySQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": ["relation \"nope\" does not exist"]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), "SELECT * FROM nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestQueryServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
