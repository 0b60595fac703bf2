// Command genmock generates a deterministic snapshot fixture: a fixed set of
// stations observed hourly, each with a three day forecast, hourly series,
// alerts where the weather warrants them, and the analysis the ingestion
// pipeline would derive. The fixture feeds cmd/validate and manual testing of
// the Kafka and MQTT consumers.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/snapshots.json -hours 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// baseTime anchors every generated observation so repeated runs match byte for byte.
var baseTime = time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

// fixtureNamespace seeds the name-based snapshot ids.
var fixtureNamespace = uuid.MustParse("6f1d3c1e-8a52-4c1b-9f5e-2a9b7c3d4e10")

type stationDef struct {
	name, city, state, country, timezone string
	lon, lat                             float64
	temp, humidity, wind, gust, rain     float64
	condition                            string
}

var stationDefs = []stationDef{
	{name: "Dallas Love Field", city: "Dallas", state: "TX", country: "US", timezone: "America/Chicago", lon: -96.8517, lat: 32.8471, temp: 22, humidity: 58, wind: 4, rain: 0.4, condition: "Clouds"},
	{name: "Fort Worth Meacham", city: "Fort Worth", state: "TX", country: "US", timezone: "America/Chicago", lon: -97.3626, lat: 32.8198, temp: 23, humidity: 61, wind: 21, gust: 27, rain: 18, condition: "Thunderstorm"},
	{name: "Oklahoma City", city: "Oklahoma City", state: "OK", country: "US", timezone: "America/Chicago", lon: -97.5164, lat: 35.4676, temp: 20, humidity: 72, wind: 26, gust: 34, rain: 35, condition: "Thunderstorm"},
	{name: "Phoenix Sky Harbor", city: "Phoenix", state: "AZ", country: "US", timezone: "America/Phoenix", lon: -112.0116, lat: 33.4342, temp: 41, humidity: 9, wind: 7, condition: "Clear"},
	{name: "Miami", city: "Miami", state: "FL", country: "US", timezone: "America/New_York", lon: -80.1918, lat: 25.7617, temp: 29, humidity: 80, wind: 8, rain: 22, condition: "Rain"},
	{name: "Mumbai", city: "Mumbai", state: "MH", country: "IN", timezone: "Asia/Kolkata", lon: 72.8777, lat: 19.076, temp: 31, humidity: 88, wind: 11, rain: 95, condition: "Rain"},
	{name: "Reykjavik", city: "Reykjavik", country: "IS", timezone: "Atlantic/Reykjavik", lon: -21.9426, lat: 64.1466, temp: -6, humidity: 74, wind: 14, rain: 1.2, condition: "Snow"},
	{name: "Yakutsk", city: "Yakutsk", country: "RU", timezone: "Asia/Yakutsk", lon: 129.7422, lat: 62.0355, temp: -31, humidity: 70, wind: 3, condition: "Clear"},
	{name: "Suva", city: "Suva", country: "FJ", timezone: "Pacific/Fiji", lon: 178.4419, lat: -18.1416, temp: 27, humidity: 83, wind: 12, rain: 9, condition: "Rain"},
	{name: "Taveuni", city: "Taveuni", country: "FJ", timezone: "Pacific/Fiji", lon: -179.9667, lat: -16.85, temp: 27, humidity: 80, wind: 10, rain: 6, condition: "Clouds"},
	{name: "Alice Springs", city: "Alice Springs", state: "NT", country: "AU", timezone: "Australia/Darwin", lon: 133.8807, lat: -23.698, temp: 36, humidity: 14, wind: 16, condition: "Clear"},
	{name: "London Heathrow", city: "London", state: "ENG", country: "GB", timezone: "Europe/London", lon: -0.4543, lat: 51.47, temp: 12, humidity: 76, wind: 6, rain: 2.5, condition: "Drizzle"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the snapshot JSON fixture")
	hours := flag.Int("hours", 3, "hourly observations per station")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *hours < 1 {
		return fmt.Errorf("-hours must be at least 1")
	}

	clock := clockwork.NewFakeClockAt(baseTime)
	snapshots := make([]domain.Snapshot, 0, len(stationDefs)*(*hours))
	for h := 0; h < *hours; h++ {
		for i, def := range stationDefs {
			snapshots = append(snapshots, buildSnapshot(def, i, h, clock.Now()))
		}
		clock.Advance(time.Hour)
	}

	if err := writeJSON(*out, snapshots); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d snapshots: %s", len(snapshots), *out)

	printStats(snapshots)
	return nil
}

// buildSnapshot drifts the station's conditions slightly each hour so trends
// and hourly series are not flat.
func buildSnapshot(def stationDef, station, hour int, observed time.Time) domain.Snapshot {
	drift := float64(hour)
	current := &domain.Current{
		Temperature: domain.Temperature{
			Value:     def.temp + 0.5*drift,
			FeelsLike: def.temp + 0.5*drift - def.wind/5,
			Min:       def.temp - 4,
			Max:       def.temp + 4,
		},
		Humidity:      clamp(def.humidity-drift, 0, 100),
		Pressure:      1013 - 2*drift,
		Wind:          domain.Wind{Speed: def.wind, Direction: float64((station * 37) % 360), Gust: def.gust},
		Visibility:    10000,
		Precipitation: domain.Precipitation{Rain: rainOf(def), Snow: snowOf(def), Probability: probabilityOf(def)},
		CloudCover:    cloudCoverOf(def),
		Condition:     domain.Condition{Main: def.condition, Description: def.condition},
		UVIndex:       clamp(def.temp/4, 0, 11),
		Sunrise:       observed.Truncate(24 * time.Hour).Add(6 * time.Hour),
		Sunset:        observed.Truncate(24 * time.Hour).Add(19 * time.Hour),

		ObservationTime: observed,
	}

	s := domain.Snapshot{
		ID: uuid.NewSHA1(fixtureNamespace, []byte(fmt.Sprintf("%s|%d", def.name, hour))).String(),
		Location: domain.Location{
			Coordinates: &domain.Coordinates{Longitude: def.lon, Latitude: def.lat},
			Name:        def.name,
			Country:     def.country,
			State:       def.state,
			City:        def.city,
			Timezone:    def.timezone,
		},
		Current:  current,
		Forecast: forecastFor(def, observed),
		Hourly:   hourlyFor(def, observed),
		Alerts:   alertsFor(def, station, observed),
		DataSources: []domain.DataSource{{
			Provider:      "openweathermap",
			APIVersion:    "3.0",
			LastUpdated:   observed,
			Quality:       domain.DataQuality{Score: 0.92},
			RequestsUsed:  station + 1,
			RequestsLimit: 1000,
		}},
		Historical: &domain.Historical{
			AverageTemperature:   def.temp - 2,
			AveragePrecipitation: def.rain / 2,
			TemperatureAnomaly:   2,
			PrecipitationAnomaly: def.rain / 2,
		},
		CreatedAt: observed.Add(5 * time.Minute),
	}
	a := domain.Assess(s)
	s.Analysis = &a
	return s
}

func forecastFor(def stationDef, observed time.Time) []domain.DailyForecast {
	day := observed.Truncate(24 * time.Hour)
	out := make([]domain.DailyForecast, 0, 3)
	for d := 1; d <= 3; d++ {
		out = append(out, domain.DailyForecast{
			Date:          day.AddDate(0, 0, d),
			Temperature:   domain.TemperatureRange{Min: def.temp - 5, Max: def.temp + float64(d)},
			Condition:     domain.Condition{Main: def.condition, Description: def.condition},
			Precipitation: domain.Precipitation{Rain: rainOf(def) / float64(d), Snow: snowOf(def), Probability: probabilityOf(def)},
			Wind:          domain.Wind{Speed: def.wind, Direction: 180, Gust: def.gust},
			Humidity:      def.humidity,
			Pressure:      1012,
		})
	}
	return out
}

func hourlyFor(def stationDef, observed time.Time) []domain.HourlyForecast {
	out := make([]domain.HourlyForecast, 0, 6)
	for h := 1; h <= 6; h++ {
		out = append(out, domain.HourlyForecast{
			Time:          observed.Add(time.Duration(h) * time.Hour),
			Temperature:   def.temp + float64(h)/2,
			FeelsLike:     def.temp + float64(h)/2 - def.wind/5,
			Humidity:      def.humidity,
			Pressure:      1012,
			Wind:          domain.Wind{Speed: def.wind, Direction: 180},
			Precipitation: domain.Precipitation{Rain: rainOf(def) / 6, Probability: probabilityOf(def)},
			Condition:     domain.Condition{Main: def.condition},
		})
	}
	return out
}

// alertsFor issues one alert per noteworthy hazard. Every third station also
// gets an alert that ended before observation so consumers see expired windows.
func alertsFor(def stationDef, station int, observed time.Time) []domain.Alert {
	var alerts []domain.Alert
	add := func(title string, sev domain.AlertSeverity, start, end time.Time) {
		alerts = append(alerts, domain.Alert{
			ID:       fmt.Sprintf("%s-%d-%d", def.country, station, len(alerts)),
			Title:    title,
			Severity: sev,
			Urgency:  "expected",
			Areas:    []string{def.city},
			Start:    start,
			End:      end,
			Source:   "fixture",
		})
	}
	if def.condition == "Thunderstorm" {
		add("Severe Thunderstorm Warning", domain.AlertSevere, observed.Add(-time.Hour), observed.Add(3*time.Hour))
	}
	if def.rain >= 30 {
		add("Flash Flood Warning", domain.AlertExtreme, observed.Add(-2*time.Hour), observed.Add(12*time.Hour))
	}
	if def.temp >= 38 {
		add("Excessive Heat Warning", domain.AlertSevere, observed.Add(-6*time.Hour), time.Time{})
	}
	if def.temp <= -25 {
		add("Extreme Cold Warning", domain.AlertModerate, time.Time{}, observed.Add(24*time.Hour))
	}
	if station%3 == 0 {
		add("Wind Advisory", domain.AlertMinor, observed.Add(-6*time.Hour), observed.Add(-time.Hour))
	}
	return alerts
}

func rainOf(def stationDef) float64 {
	if def.temp <= 0 {
		return 0
	}
	return def.rain
}

func snowOf(def stationDef) float64 {
	if def.temp <= 0 {
		return def.rain
	}
	return 0
}

func probabilityOf(def stationDef) float64 {
	return clamp(def.rain*3, 0, 100)
}

func cloudCoverOf(def stationDef) float64 {
	if def.condition == "Clear" {
		return 5
	}
	return clamp(def.humidity, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type levelCount struct {
	level domain.RiskLevel
	count int
}

func printStats(snapshots []domain.Snapshot) {
	levels := map[domain.RiskLevel]int{}
	countries := map[string]int{}
	var alerts, active int
	for i := range snapshots {
		s := &snapshots[i]
		levels[s.HazardLevel(domain.HazardOverall)]++
		countries[s.Location.Country]++
		alerts += len(s.Alerts)
		active += len(domain.ActiveAlerts(*s, s.ObservationTime()))
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(snapshots))

	lc := make([]levelCount, 0, len(levels))
	for l, c := range levels {
		lc = append(lc, levelCount{l, c})
	}
	sort.Slice(lc, func(i, j int) bool { return lc[i].level.Rank() > lc[j].level.Rank() })
	fmt.Print("By overall risk:")
	for _, l := range lc {
		fmt.Printf(" %s=%d", l.level, l.count)
	}
	fmt.Println()

	fmt.Printf("Countries: %d\n", len(countries))
	fmt.Printf("Alerts: %d (%d active at observation)\n", alerts, active)
}
