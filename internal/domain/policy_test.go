package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveCacheKey(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		lat, lon  float64
		createdAt time.Time
		want      string
	}{
		{
			name:      "exact tick",
			policy:    Policy{},
			lat:       40.123,
			lon:       -74.456,
			createdAt: time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC),
			want:      "40.123_-74.456_1714143600000",
		},
		{
			name:      "rounded to three decimals",
			policy:    Policy{},
			lat:       40.12349,
			lon:       -74.45551,
			createdAt: time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC),
			want:      "40.123_-74.456_1714143600000",
		},
		{
			name:      "truncated to window",
			policy:    Policy{CacheKeyWindow: 15 * time.Minute},
			lat:       40.123,
			lon:       -74.456,
			createdAt: time.Date(2024, 4, 26, 15, 14, 59, 0, time.UTC),
			want:      "40.123_-74.456_1714143600000",
		},
		{
			name:      "non-UTC input",
			policy:    Policy{},
			lat:       40.123,
			lon:       -74.456,
			createdAt: time.Date(2024, 4, 26, 11, 0, 0, 0, time.FixedZone("EDT", -4*3600)),
			want:      "40.123_-74.456_1714143600000",
		},
		{
			name:      "negative zero",
			policy:    Policy{},
			lat:       -0.0001,
			lon:       0.0004,
			createdAt: time.UnixMilli(0),
			want:      "0.000_0.000_0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.DeriveCacheKey(tt.lat, tt.lon, tt.createdAt))
		})
	}
}

func TestDeriveCacheKey_WindowSeparatesPolls(t *testing.T) {
	p := DefaultPolicy()
	first := p.DeriveCacheKey(40.123, -74.456, testNow)
	sameWindow := p.DeriveCacheKey(40.123, -74.456, testNow.Add(10*time.Minute))
	nextWindow := p.DeriveCacheKey(40.123, -74.456, testNow.Add(15*time.Minute))

	assert.Equal(t, first, sameWindow)
	assert.NotEqual(t, first, nextWindow)
}

func TestDefaultExpiry(t *testing.T) {
	assert.Equal(t, testNow.Add(6*time.Hour), DefaultPolicy().DefaultExpiry(testNow))
	assert.Equal(t, testNow.Add(time.Hour), Policy{TTL: time.Hour}.DefaultExpiry(testNow))
	assert.Equal(t, testNow.Add(DefaultTTL), Policy{}.DefaultExpiry(testNow), "zero TTL falls back to default")
}

func TestIsFresh(t *testing.T) {
	s := sampleSnapshot("snap-1", testNow.Add(-90*time.Minute))

	assert.True(t, IsFresh(s, 2*time.Hour, testNow))
	assert.False(t, IsFresh(s, 30*time.Minute, testNow))
	assert.False(t, IsFresh(s, 90*time.Minute, testNow), "age equal to maxAge is stale")
	assert.False(t, IsFresh(Snapshot{}, time.Hour, testNow), "no observation time")
}
