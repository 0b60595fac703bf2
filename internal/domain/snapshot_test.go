package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)

// sampleSnapshot returns a valid snapshot observed at obs near New York.
func sampleSnapshot(id string, obs time.Time) Snapshot {
	return Snapshot{
		ID: id,
		Location: Location{
			Coordinates: &Coordinates{Longitude: -74.456, Latitude: 40.123},
			Name:        "Toms River",
			Country:     "US",
			State:       "NJ",
			City:        "Toms River",
		},
		Current: &Current{
			Temperature:     Temperature{Value: 18.5, FeelsLike: 17.9, Min: 14, Max: 21},
			Humidity:        62,
			Pressure:        1014,
			Wind:            Wind{Speed: 4.2, Direction: 220},
			Visibility:      10000,
			Precipitation:   Precipitation{Rain: 0.4, Probability: 20},
			CloudCover:      40,
			Condition:       Condition{Main: "Clouds", Description: "scattered clouds"},
			UVIndex:         5,
			ObservationTime: obs,
		},
		Forecast: []DailyForecast{
			{Date: obs.Truncate(24 * time.Hour).Add(24 * time.Hour), Temperature: TemperatureRange{Min: 12, Max: 22}, Humidity: 60, Pressure: 1012},
			{Date: obs.Truncate(24 * time.Hour).Add(48 * time.Hour), Temperature: TemperatureRange{Min: 11, Max: 20}, Precipitation: Precipitation{Rain: 3, Probability: 60}, Humidity: 70, Pressure: 1008},
		},
	}
}

func TestSnapshot_Clone(t *testing.T) {
	s := sampleSnapshot("snap-1", testNow)
	s.Alerts = []Alert{{ID: "a1", Severity: AlertSevere, Areas: []string{"Ocean"}}}
	s.Analysis = &Analysis{RiskAssessment: RiskProfile{
		Overall: RiskHigh,
		Hazards: map[Hazard]RiskAssessment{HazardFlood: {Risk: RiskHigh, Factors: []string{"rain"}}},
	}}
	s.Historical = &Historical{RecordHigh: &Record{Value: 38}}

	c := s.Clone()
	require.Empty(t, cmp.Diff(s, c))

	c.Location.Coordinates.Latitude = 0
	c.Current.Humidity = 0
	c.Forecast[0].Humidity = 0
	c.Alerts[0].Areas[0] = "Inland"
	c.Analysis.RiskAssessment.Hazards[HazardFlood] = RiskAssessment{Risk: RiskLow}
	c.Historical.RecordHigh.Value = 0

	assert.Equal(t, 40.123, s.Location.Coordinates.Latitude)
	assert.Equal(t, 62.0, s.Current.Humidity)
	assert.Equal(t, 60.0, s.Forecast[0].Humidity)
	assert.Equal(t, "Ocean", s.Alerts[0].Areas[0])
	assert.Equal(t, RiskHigh, s.Analysis.RiskAssessment.Hazards[HazardFlood].Risk)
	assert.Equal(t, 38.0, s.Historical.RecordHigh.Value)
}

func TestSnapshot_DataAge(t *testing.T) {
	s := sampleSnapshot("snap-1", testNow.Add(-90*time.Minute))
	assert.Equal(t, 90*time.Minute, s.DataAge(testNow))
	assert.Equal(t, 100*time.Minute, s.DataAge(testNow.Add(10*time.Minute)), "age is recomputed per call")

	assert.Zero(t, Snapshot{}.DataAge(testNow))
}

func TestSnapshot_ExpiryBoundary(t *testing.T) {
	s := Snapshot{ExpiresAt: testNow}

	assert.False(t, s.IsExpired(testNow), "expiresAt == now is not yet expired")
	assert.False(t, s.IsActive(testNow), "expiresAt == now is no longer readable")
	assert.True(t, s.IsExpired(testNow.Add(time.Millisecond)))
	assert.True(t, s.IsActive(testNow.Add(-time.Millisecond)))
}

func TestLocation_DisplayName(t *testing.T) {
	assert.Equal(t, "Toms River", Location{Name: "Toms River", City: "Dover"}.DisplayName())
	assert.Equal(t, "Dover", Location{City: "Dover"}.DisplayName())
}
