package domain

import (
	"slices"
	"time"
)

// Coordinates is a WGS-84 longitude/latitude pair. Both values are always
// present together.
type Coordinates struct {
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
}

// Location identifies where a snapshot was observed.
type Location struct {
	Coordinates *Coordinates `json:"coordinates"`
	Name        string       `json:"name"`
	Country     string       `json:"country"`
	State       string       `json:"state,omitempty"`
	City        string       `json:"city,omitempty"`
	Region      string       `json:"region,omitempty"`
	Timezone    string       `json:"timezone,omitempty"`
}

// DisplayName returns the location name, falling back to the city.
func (l Location) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.City
}

type Temperature struct {
	Value     float64 `json:"value"`
	FeelsLike float64 `json:"feelsLike"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

type Wind struct {
	Speed     float64 `json:"speed" validate:"gte=0"`
	Direction float64 `json:"direction" validate:"gte=0,lte=360"`
	Gust      float64 `json:"gust,omitempty" validate:"gte=0"`
}

// Precipitation amounts are millimetres; Probability is a percentage.
type Precipitation struct {
	Rain        float64 `json:"rain" validate:"gte=0"`
	Snow        float64 `json:"snow" validate:"gte=0"`
	Probability float64 `json:"probability" validate:"gte=0,lte=100"`
}

// Total returns rain plus snow.
func (p Precipitation) Total() float64 {
	return p.Rain + p.Snow
}

type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
}

// Current holds the observed conditions. ObservationTime anchors freshness.
type Current struct {
	Temperature     Temperature   `json:"temperature"`
	Humidity        float64       `json:"humidity" validate:"gte=0,lte=100"`
	Pressure        float64       `json:"pressure" validate:"gte=0"`
	Wind            Wind          `json:"wind"`
	Visibility      float64       `json:"visibility" validate:"gte=0"`
	Precipitation   Precipitation `json:"precipitation"`
	CloudCover      float64       `json:"cloudCover" validate:"gte=0,lte=100"`
	Condition       Condition     `json:"condition"`
	UVIndex         float64       `json:"uvIndex" validate:"gte=0,lte=15"`
	Sunrise         time.Time     `json:"sunrise,omitzero"`
	Sunset          time.Time     `json:"sunset,omitzero"`
	ObservationTime time.Time     `json:"observationTime"`
}

type TemperatureRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type DailyForecast struct {
	Date          time.Time        `json:"date"`
	Temperature   TemperatureRange `json:"temperature"`
	Condition     Condition        `json:"condition"`
	Precipitation Precipitation    `json:"precipitation"`
	Wind          Wind             `json:"wind"`
	Humidity      float64          `json:"humidity" validate:"gte=0,lte=100"`
	Pressure      float64          `json:"pressure" validate:"gte=0"`
}

type HourlyForecast struct {
	Time          time.Time     `json:"time"`
	Temperature   float64       `json:"temperature"`
	FeelsLike     float64       `json:"feelsLike"`
	Humidity      float64       `json:"humidity" validate:"gte=0,lte=100"`
	Pressure      float64       `json:"pressure" validate:"gte=0"`
	Wind          Wind          `json:"wind"`
	Precipitation Precipitation `json:"precipitation"`
	Condition     Condition     `json:"condition"`
}

// RiskAssessment is the assessment for a single hazard.
type RiskAssessment struct {
	Risk       RiskLevel `json:"risk"`
	Confidence float64   `json:"confidence"`
	Factors    []string  `json:"factors,omitempty"`
}

// RiskProfile is the overall level plus the per-hazard assessments.
type RiskProfile struct {
	Overall RiskLevel                 `json:"overall"`
	Hazards map[Hazard]RiskAssessment `json:"hazards,omitempty"`
}

type Trend struct {
	Direction string  `json:"direction"` // rising, falling, stable
	Rate      float64 `json:"rate"`      // units per hour
}

type Trends struct {
	Temperature   Trend `json:"temperature"`
	Precipitation Trend `json:"precipitation"`
	Pressure      Trend `json:"pressure"`
}

type Recommendation struct {
	Type           string   `json:"type"`
	Priority       string   `json:"priority"`
	Message        string   `json:"message"`
	Timeframe      string   `json:"timeframe"`
	AffectedGroups []string `json:"affectedGroups,omitempty"`
}

// Confidence.Overall is nil until the producer or NormalizeAnalysis sets it,
// so an explicit 0 is distinct from absent.
type Confidence struct {
	Overall *float64 `json:"overall"`
}

// Analysis is the embedded risk block of a snapshot.
type Analysis struct {
	RiskAssessment  RiskProfile      `json:"riskAssessment"`
	Trends          Trends           `json:"trends"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Confidence      Confidence       `json:"confidence"`
}

type DataQuality struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// DataSource records provenance. It is informational only.
type DataSource struct {
	Provider      string      `json:"provider"`
	APIVersion    string      `json:"apiVersion,omitempty"`
	LastUpdated   time.Time   `json:"lastUpdated"`
	Quality       DataQuality `json:"quality"`
	RequestsUsed  int         `json:"requestsUsed"`
	RequestsLimit int         `json:"requestsLimit"`
}

// Alert is an official weather alert. A zero Start or End means the window is
// open on that side.
type Alert struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Severity    AlertSeverity `json:"severity"`
	Urgency     string        `json:"urgency,omitempty"`
	Certainty   string        `json:"certainty,omitempty"`
	Areas       []string      `json:"areas,omitempty"`
	Start       time.Time     `json:"start,omitzero"`
	End         time.Time     `json:"end,omitzero"`
	Source      string        `json:"source,omitempty"`
}

type Record struct {
	Value float64   `json:"value"`
	Date  time.Time `json:"date"`
}

// Historical carries comparison statistics for the location.
type Historical struct {
	AverageTemperature   float64 `json:"averageTemperature"`
	AveragePrecipitation float64 `json:"averagePrecipitation"`
	TemperatureAnomaly   float64 `json:"temperatureAnomaly"`
	PrecipitationAnomaly float64 `json:"precipitationAnomaly"`
	RecordHigh           *Record `json:"recordHigh,omitempty"`
	RecordLow            *Record `json:"recordLow,omitempty"`
}

// Snapshot is the central stored entity.
type Snapshot struct {
	ID          string           `json:"id"`
	Location    Location         `json:"location"`
	Current     *Current         `json:"current"`
	Forecast    []DailyForecast  `json:"forecast,omitempty" validate:"dive"`
	Hourly      []HourlyForecast `json:"hourly,omitempty" validate:"dive"`
	Analysis    *Analysis        `json:"aiAnalysis,omitempty"`
	DataSources []DataSource     `json:"dataSources,omitempty"`
	Alerts      []Alert          `json:"alerts,omitempty"`
	Historical  *Historical      `json:"historical,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	CacheKey    string           `json:"cacheKey,omitempty"`
	Version     int              `json:"version"`
}

// Coordinates returns the snapshot coordinates, or false if they are unset.
func (s Snapshot) Coordinates() (Coordinates, bool) {
	if s.Location.Coordinates == nil {
		return Coordinates{}, false
	}
	return *s.Location.Coordinates, true
}

// ObservationTime returns Current.ObservationTime, or the zero time when no
// current conditions are present.
func (s Snapshot) ObservationTime() time.Time {
	if s.Current == nil {
		return time.Time{}
	}
	return s.Current.ObservationTime
}

// DataAge is the time elapsed since observation. It is computed on every call.
func (s Snapshot) DataAge(now time.Time) time.Duration {
	obs := s.ObservationTime()
	if obs.IsZero() {
		return 0
	}
	return now.Sub(obs)
}

// IsExpired reports whether ExpiresAt lies strictly before now.
func (s Snapshot) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// IsActive reports whether the snapshot is still visible to readers at now.
func (s Snapshot) IsActive(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Location.Coordinates != nil {
		c := *s.Location.Coordinates
		out.Location.Coordinates = &c
	}
	if s.Current != nil {
		c := *s.Current
		out.Current = &c
	}
	out.Forecast = slices.Clone(s.Forecast)
	out.Hourly = slices.Clone(s.Hourly)
	if s.Analysis != nil {
		a := s.Analysis.clone()
		out.Analysis = &a
	}
	if s.DataSources != nil {
		out.DataSources = make([]DataSource, len(s.DataSources))
		for i, ds := range s.DataSources {
			ds.Quality.Issues = slices.Clone(ds.Quality.Issues)
			out.DataSources[i] = ds
		}
	}
	if s.Alerts != nil {
		out.Alerts = make([]Alert, len(s.Alerts))
		for i, a := range s.Alerts {
			a.Areas = slices.Clone(a.Areas)
			out.Alerts[i] = a
		}
	}
	if s.Historical != nil {
		h := *s.Historical
		if h.RecordHigh != nil {
			r := *h.RecordHigh
			h.RecordHigh = &r
		}
		if h.RecordLow != nil {
			r := *h.RecordLow
			h.RecordLow = &r
		}
		out.Historical = &h
	}
	return out
}

func (a Analysis) clone() Analysis {
	out := a
	if a.RiskAssessment.Hazards != nil {
		out.RiskAssessment.Hazards = make(map[Hazard]RiskAssessment, len(a.RiskAssessment.Hazards))
		for h, ra := range a.RiskAssessment.Hazards {
			ra.Factors = slices.Clone(ra.Factors)
			out.RiskAssessment.Hazards[h] = ra
		}
	}
	if a.Confidence.Overall != nil {
		out.Confidence.Overall = ptr(*a.Confidence.Overall)
	}
	if a.Recommendations != nil {
		out.Recommendations = make([]Recommendation, len(a.Recommendations))
		for i, r := range a.Recommendations {
			r.AffectedGroups = slices.Clone(r.AffectedGroups)
			out.Recommendations[i] = r
		}
	}
	return out
}
