package geosearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "140 West 28 Street, Manhattan", r.URL.Query().Get("text"))
		assert.Equal(t, "1", r.URL.Query().Get("size"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [{
				"properties": {
					"borough": "Manhattan",
					"housenumber": "140",
					"street": "WEST 28 STREET",
					"addendum": {"pad": {"bin": "1015862", "bbl": "1008030060"}}
				}
			}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	p, err := client.Lookup(context.Background(), "140 West 28 Street, Manhattan")

	require.NoError(t, err)
	assert.Equal(t, "1015862", p.BIN)
	assert.Equal(t, "1008030060", p.BBL)
	assert.Equal(t, "Manhattan", p.Borough)
	assert.Equal(t, "803", p.Block)
	assert.Equal(t, "60", p.Lot)
	assert.Equal(t, "140 WEST 28 STREET", p.Address)
}

func TestLookup_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), "nowhere")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), "any")

	assert.Error(t, err)
}

func TestSplitBBL(t *testing.T) {
	tests := []struct {
		bbl   string
		block string
		lot   string
	}{
		{"1008030060", "803", "60"},
		{"3000010001", "1", "1"},
		{"short", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		block, lot := splitBBL(tt.bbl)
		assert.Equal(t, tt.block, block)
		assert.Equal(t, tt.lot, lot)
	}
}
