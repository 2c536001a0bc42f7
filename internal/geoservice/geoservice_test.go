package geoservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeighborsSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/neighbors/ca", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"neighbors": ["or", "nv", "az"]}`))
	}))
	defer ts.Close()

	c := New(ts.URL, 0)
	neighbors, err := c.Neighbors(context.Background(), "ca")
	require.NoError(t, err)
	assert.Equal(t, []string{"or", "nv", "az"}, neighbors)
}

func TestNeighborsNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`not found`))
	}))
	defer ts.Close()

	c := New(ts.URL, 0)
	_, err := c.Neighbors(context.Background(), "missing")
	assert.Error(t, err)
}

func TestNeighborsMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	c := New(ts.URL, 0)
	_, err := c.Neighbors(context.Background(), "ca")
	assert.Error(t, err)
}
