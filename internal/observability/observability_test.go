package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-cache/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogFormat: "json", LogLevel: "info"})

	logger.Debug("hidden")
	logger.Info("snapshot stored", "snapshot_id", "snap-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "snapshot stored", entry["msg"])
	assert.Equal(t, "snap-1", entry["snapshot_id"])
	assert.Equal(t, "weather-snapshot-cache", entry["service"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogFormat: "text", LogLevel: "warn"})

	logger.Info("hidden")
	logger.Warn("sweep failed")

	assert.Contains(t, buf.String(), "sweep failed")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.SnapshotsPut.WithLabelValues("stored").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SnapshotsPut.WithLabelValues("stored")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SnapshotsPut.WithLabelValues("stored")))
}
