//go:build mapbox

package mapbox

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		circuit:    newCircuit(discardLogger()),
		metrics:    observability.NewMetricsForTesting(),
		logger:     discardLogger(),
	}
}

func TestSmoke_ForwardGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ForwardGeocode(context.Background(), "Toms River", "US")
	require.NoError(t, err)

	assert.InDelta(t, 39.95, result.Lat, 0.1, "lat should be near Toms River")
	assert.InDelta(t, -74.2, result.Lon, 0.1, "lon should be near Toms River")
	assert.Equal(t, "Toms River", result.City)
	assert.Equal(t, "NJ", result.State)
	assert.Equal(t, "US", result.Country)
	assert.Greater(t, result.Confidence, 0.5)
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ReverseGeocode(context.Background(), 48.8566, 2.3522)
	require.NoError(t, err)

	assert.Equal(t, "Paris", result.City)
	assert.Equal(t, "FR", result.Country)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	r1, err := cached.ForwardGeocode(context.Background(), "Boulder", "US")
	require.NoError(t, err)
	r2, err := cached.ForwardGeocode(context.Background(), "Boulder", "US")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
