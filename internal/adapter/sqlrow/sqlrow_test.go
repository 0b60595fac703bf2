package sqlrow

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

func TestFromSnapshot(t *testing.T) {
	obs := time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)
	s := domain.Snapshot{
		ID:        "snap-1",
		Location:  domain.Location{Coordinates: &domain.Coordinates{Longitude: -74.456, Latitude: 40.123}, Name: "Toms River", City: "TOMS River"},
		Current:   &domain.Current{ObservationTime: obs},
		CreatedAt: obs.Add(time.Minute),
		ExpiresAt: obs.Add(time.Hour),
		CacheKey:  "40.123_-74.456_1714143600000",
		Analysis: &domain.Analysis{RiskAssessment: domain.RiskProfile{
			Overall: domain.RiskHigh,
			Hazards: map[domain.Hazard]domain.RiskAssessment{
				domain.HazardFlood:    {Risk: domain.RiskHigh},
				domain.HazardWildfire: {Risk: domain.RiskUnknown},
			},
		}},
	}

	row, err := FromSnapshot(s)
	require.NoError(t, err)

	assert.Equal(t, "snap-1", row.ID)
	require.NotNil(t, row.CacheKey)
	assert.Equal(t, s.CacheKey, *row.CacheKey)
	require.NotNil(t, row.Longitude)
	assert.Equal(t, -74.456, *row.Longitude)
	assert.Equal(t, "toms river", row.NameLower)
	assert.Equal(t, "toms river", row.CityLower)
	assert.Equal(t, obs.UnixNano(), row.ObservedAt)
	assert.Equal(t, obs.Add(time.Minute).UnixNano(), row.CreatedAt)
	assert.Equal(t, []Risk{{Hazard: "overall", Rank: 4}, {Hazard: "flood", Rank: 4}}, row.Risks)

	back, err := Decode(row.Body)
	require.NoError(t, err)
	assert.Equal(t, s.ID, back.ID)
	assert.True(t, back.ExpiresAt.Equal(s.ExpiresAt))
}

func TestFromSnapshot_NoKeyNoCoordinates(t *testing.T) {
	row, err := FromSnapshot(domain.Snapshot{ID: "x"})
	require.NoError(t, err)
	assert.Nil(t, row.CacheKey)
	assert.Nil(t, row.Longitude)
	assert.Nil(t, row.Latitude)
	assert.Zero(t, row.ObservedAt)
	assert.Empty(t, row.Risks)
}

func TestNanos(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   time.Time
		want int64
	}{
		{"zero", time.Time{}, 0},
		{"in range", now, now.UnixNano()},
		{"year 3000", time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC), math.MaxInt64},
		{"end of calendar", time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC), math.MaxInt64},
		{"year 1000", time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC), math.MinInt64},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Nanos(tc.in))
		})
	}
	assert.Greater(t, Nanos(time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)), Nanos(now))
}

func TestFilter(t *testing.T) {
	at := time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)
	q := domain.Query{
		Bounds:       []domain.BBox{{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}},
		NameContains: "Ri",
		ActiveAt:     at,
	}

	tests := []struct {
		name    string
		dialect Dialect
		offset  int
		where   string
	}{
		{
			name:    "sqlite",
			dialect: SQLite,
			where:   " WHERE ((longitude BETWEEN ? AND ? AND latitude BETWEEN ? AND ?)) AND (instr(name_lower, ?) > 0 OR instr(city_lower, ?) > 0) AND expires_at > ?",
		},
		{
			name:    "postgres with offset",
			dialect: Postgres,
			offset:  1,
			where:   " WHERE ((longitude BETWEEN $2 AND $3 AND latitude BETWEEN $4 AND $5)) AND (strpos(name_lower, $6) > 0 OR strpos(city_lower, $7) > 0) AND expires_at > $8",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			where, args := Filter(q, tc.dialect, tc.offset)
			assert.Equal(t, tc.where, where)
			assert.Equal(t, []any{1.0, 3.0, 2.0, 4.0, "ri", "ri", at.UnixNano()}, args)
		})
	}
}

func TestFilter_Empty(t *testing.T) {
	where, args := Filter(domain.Query{}, SQLite, 0)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestFilter_Hazard(t *testing.T) {
	tests := []struct {
		name    string
		q       domain.Query
		dialect Dialect
		where   string
		args    []any
	}{
		{
			name:    "flood at least high",
			q:       domain.Query{Hazard: domain.HazardFlood, MinRisk: domain.RiskHigh},
			dialect: SQLite,
			where:   " WHERE id IN (SELECT snapshot_id FROM snapshot_risks WHERE hazard = ? AND risk_rank >= ?)",
			args:    []any{"flood", 4},
		},
		{
			name:    "unknown minimum still excludes unassessed",
			q:       domain.Query{Hazard: domain.HazardOverall, MinRisk: domain.RiskUnknown},
			dialect: Postgres,
			where:   " WHERE id IN (SELECT snapshot_id FROM snapshot_risks WHERE hazard = $1 AND risk_rank >= $2)",
			args:    []any{"overall", 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			where, args := Filter(tc.q, tc.dialect, 0)
			assert.Equal(t, tc.where, where)
			assert.Equal(t, tc.args, args)
		})
	}
}
