package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRegionStats(t *testing.T) {
	a := sampleSnapshot("a", testNow)
	a.Current.Temperature.Value = 10
	a.Current.Humidity = 50
	a.Current.Wind.Speed = 2
	a.Current.Precipitation = Precipitation{Rain: 1, Snow: 0.5}

	b := sampleSnapshot("b", testNow)
	b.Current.Temperature.Value = 20
	b.Current.Humidity = 70
	b.Current.Wind.Speed = 6
	b.Current.Precipitation = Precipitation{Rain: 2}

	noCurrent := Snapshot{ID: "c"}

	got := ComputeRegionStats([]Snapshot{a, b, noCurrent})

	require.Equal(t, 2, got.Count)
	assert.Equal(t, 15.0, *got.AvgTemperature)
	assert.Equal(t, 20.0, *got.MaxTemperature)
	assert.Equal(t, 10.0, *got.MinTemperature)
	assert.Equal(t, 60.0, *got.AvgHumidity)
	assert.Equal(t, 4.0, *got.AvgWindSpeed)
	assert.Equal(t, 3.5, *got.TotalPrecipitation)
}

func TestComputeRegionStats_Empty(t *testing.T) {
	got := ComputeRegionStats(nil)

	assert.Equal(t, RegionStats{}, got)
	assert.Nil(t, got.AvgTemperature)
	assert.Nil(t, got.TotalPrecipitation)
}

func TestComputeRegionStats_NegativeTemperatures(t *testing.T) {
	a := sampleSnapshot("a", testNow)
	a.Current.Temperature.Value = -12
	b := sampleSnapshot("b", testNow)
	b.Current.Temperature.Value = -3

	got := ComputeRegionStats([]Snapshot{a, b})

	assert.Equal(t, -3.0, *got.MaxTemperature)
	assert.Equal(t, -12.0, *got.MinTemperature)
}
