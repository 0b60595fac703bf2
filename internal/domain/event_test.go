package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshot(t *testing.T) {
	want := sampleSnapshot("snap-1", testNow)
	want.Alerts = []Alert{{ID: "a1", Title: "Flood Watch", Severity: AlertModerate, Start: testNow}}
	body, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := ParseSnapshot(RawEvent{Value: body})
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(want, got))
}

func TestParseSnapshot_IDFromKey(t *testing.T) {
	got, err := ParseSnapshot(RawEvent{
		Key:   []byte("from-key"),
		Value: []byte(`{"location":{"name":"Austin"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "from-key", got.ID)
}

func TestParseSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"malformed", `{"id":`},
		{"unknown field", `{"id":"x","temperatureF":80}`},
		{"wrong type", `{"id":"x","current":{"humidity":"wet"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot(RawEvent{Value: []byte(tt.value)})
			assert.Error(t, err)
		})
	}
}

func TestNewRiskNotification(t *testing.T) {
	s := sampleSnapshot("snap-1", testNow)
	s.CacheKey = "40.123_-74.456_1714143600000"
	s.ExpiresAt = testNow.Add(6 * time.Hour)
	s.Analysis = &Analysis{RiskAssessment: RiskProfile{Overall: RiskHigh}}

	n := NewRiskNotification(s)

	assert.Equal(t, "snap-1", n.SnapshotID)
	assert.Equal(t, s.CacheKey, n.CacheKey)
	assert.Equal(t, RiskHigh, n.Risk.Overall)
	assert.Equal(t, testNow, n.ObservedAt)
	assert.Equal(t, testNow.Add(6*time.Hour), n.ExpiresAt)
}
