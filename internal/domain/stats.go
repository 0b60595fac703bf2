package domain

// RegionStats summarizes snapshots inside a region. Numeric fields are nil
// when Count is zero; they are never NaN.
type RegionStats struct {
	AvgTemperature     *float64 `json:"avgTemperature"`
	MaxTemperature     *float64 `json:"maxTemperature"`
	MinTemperature     *float64 `json:"minTemperature"`
	AvgHumidity        *float64 `json:"avgHumidity"`
	AvgWindSpeed       *float64 `json:"avgWindSpeed"`
	TotalPrecipitation *float64 `json:"totalPrecipitation"`
	Count              int      `json:"count"`
}

// ComputeRegionStats aggregates current conditions over snapshots. Snapshots
// without current conditions are not counted.
func ComputeRegionStats(snapshots []Snapshot) RegionStats {
	var (
		count                    int
		sumTemp, sumHum, sumWind float64
		totalPrecip              float64
		maxTemp, minTemp         float64
	)
	for _, s := range snapshots {
		c := s.Current
		if c == nil {
			continue
		}
		t := c.Temperature.Value
		if count == 0 {
			maxTemp, minTemp = t, t
		} else {
			maxTemp = max(maxTemp, t)
			minTemp = min(minTemp, t)
		}
		sumTemp += t
		sumHum += c.Humidity
		sumWind += c.Wind.Speed
		totalPrecip += c.Precipitation.Total()
		count++
	}

	if count == 0 {
		return RegionStats{Count: 0}
	}

	n := float64(count)
	return RegionStats{
		AvgTemperature:     ptr(sumTemp / n),
		MaxTemperature:     ptr(maxTemp),
		MinTemperature:     ptr(minTemp),
		AvgHumidity:        ptr(sumHum / n),
		AvgWindSpeed:       ptr(sumWind / n),
		TotalPrecipitation: ptr(totalPrecip),
		Count:              count,
	}
}

func ptr[T any](v T) *T {
	return &v
}
