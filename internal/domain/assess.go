package domain

import (
	"math"
	"strings"
)

// outlookDays bounds how much of the daily forecast feeds hazard levels.
const outlookDays = 3

// outlook collects the extremes that drive hazard levels.
type outlook struct {
	maxTemp, minTemp float64
	totalPrecip      float64
	maxProbability   float64
	maxWind          float64
	humidity         float64
	dryFraction      float64
	thunder          bool
	forecastDays     int
}

func buildOutlook(s Snapshot) outlook {
	c := s.Current
	o := outlook{
		maxTemp:        c.Temperature.Value,
		minTemp:        c.Temperature.Value,
		totalPrecip:    c.Precipitation.Total(),
		maxProbability: c.Precipitation.Probability,
		maxWind:        max(c.Wind.Speed, c.Wind.Gust),
		humidity:       c.Humidity,
		thunder:        isThunder(c.Condition),
	}
	if c.Temperature.Max > c.Temperature.Min {
		o.maxTemp = max(o.maxTemp, c.Temperature.Max)
		o.minTemp = min(o.minTemp, c.Temperature.Min)
	}

	days := s.Forecast
	if len(days) > outlookDays {
		days = days[:outlookDays]
	}
	dry := 0
	for _, d := range days {
		o.maxTemp = max(o.maxTemp, d.Temperature.Max)
		o.minTemp = min(o.minTemp, d.Temperature.Min)
		o.totalPrecip += d.Precipitation.Total()
		o.maxProbability = max(o.maxProbability, d.Precipitation.Probability)
		o.maxWind = max(o.maxWind, d.Wind.Speed, d.Wind.Gust)
		o.thunder = o.thunder || isThunder(d.Condition)
		if d.Precipitation.Total() < 1 {
			dry++
		}
	}
	o.forecastDays = len(days)
	if len(days) > 0 {
		o.dryFraction = float64(dry) / float64(len(days))
	}
	return o
}

func isThunder(c Condition) bool {
	m := strings.ToLower(c.Main)
	return strings.Contains(m, "thunder") || strings.Contains(m, "storm")
}

// Assess derives a full analysis from current conditions and up to three days
// of forecast. Temperatures are °C, wind m/s, precipitation mm. Snapshots
// without current conditions get an empty analysis with unknown overall level.
func Assess(s Snapshot) Analysis {
	if s.Current == nil {
		return Analysis{RiskAssessment: RiskProfile{Overall: RiskUnknown}}
	}
	o := buildOutlook(s)
	base := baseConfidence(o.forecastDays)

	hazards := map[Hazard]RiskAssessment{
		HazardFlood:    assessFlood(o, base),
		HazardStorm:    assessStorm(o, base),
		HazardHeatwave: assessHeatwave(o, base),
		HazardColdwave: assessColdwave(o, base),
		HazardDrought:  assessDrought(o, base-10),
		HazardWildfire: assessWildfire(o, base-10),
	}

	overall := RiskVeryLow
	var confSum float64
	for _, h := range Hazards {
		overall = MaxRiskLevel(overall, hazards[h].Risk)
		confSum += hazards[h].Confidence
	}

	a := Analysis{
		RiskAssessment:  RiskProfile{Overall: overall, Hazards: hazards},
		Trends:          computeTrends(s),
		Recommendations: recommend(hazards),
		Confidence:      Confidence{Overall: ptr(round1(confSum / float64(len(Hazards))))},
	}
	NormalizeAnalysis(&a)
	return a
}

// baseConfidence grows with forecast coverage: 60 with no forecast, 84 with
// the full outlook.
func baseConfidence(days int) float64 {
	return 60 + 8*float64(min(days, outlookDays))
}

// assessFlood grades accumulated precipitation over the outlook:
// <10mm very-low, <25mm low, <50mm moderate, <100mm high, else extreme.
func assessFlood(o outlook, conf float64) RiskAssessment {
	var level RiskLevel
	switch p := o.totalPrecip; {
	case p < 10:
		level = RiskVeryLow
	case p < 25:
		level = RiskLow
	case p < 50:
		level = RiskModerate
	case p < 100:
		level = RiskHigh
	default:
		level = RiskExtreme
	}
	var factors []string
	if o.totalPrecip >= 25 {
		factors = append(factors, "heavy accumulated precipitation")
	}
	if o.maxProbability >= 80 {
		factors = append(factors, "high precipitation probability")
	}
	return RiskAssessment{Risk: level, Confidence: conf, Factors: factors}
}

// assessStorm grades peak wind or gust on the Beaufort scale:
// <10.8 m/s (< force 6) very-low, <17.2 (< gale) low, <24.5 (< storm) moderate,
// <32.7 (< hurricane force) high, else extreme. Thunder raises it to at least moderate.
func assessStorm(o outlook, conf float64) RiskAssessment {
	var level RiskLevel
	switch w := o.maxWind; {
	case w < 10.8:
		level = RiskVeryLow
	case w < 17.2:
		level = RiskLow
	case w < 24.5:
		level = RiskModerate
	case w < 32.7:
		level = RiskHigh
	default:
		level = RiskExtreme
	}
	var factors []string
	if o.maxWind >= 17.2 {
		factors = append(factors, "gale-force winds")
	}
	if o.thunder {
		level = MaxRiskLevel(level, RiskModerate)
		factors = append(factors, "thunderstorms forecast")
	}
	return RiskAssessment{Risk: level, Confidence: conf, Factors: factors}
}

// assessHeatwave grades the peak temperature:
// <30°C very-low, <33 low, <37 moderate, <41 high, else extreme.
func assessHeatwave(o outlook, conf float64) RiskAssessment {
	var level RiskLevel
	switch t := o.maxTemp; {
	case t < 30:
		level = RiskVeryLow
	case t < 33:
		level = RiskLow
	case t < 37:
		level = RiskModerate
	case t < 41:
		level = RiskHigh
	default:
		level = RiskExtreme
	}
	var factors []string
	if o.maxTemp >= 33 {
		factors = append(factors, "extreme daytime temperatures")
	}
	if o.maxTemp >= 30 && o.humidity >= 60 {
		factors = append(factors, "high humidity")
	}
	return RiskAssessment{Risk: level, Confidence: conf, Factors: factors}
}

// assessColdwave grades the lowest temperature:
// >0°C very-low, >-5 low, >-15 moderate, >-25 high, else extreme.
func assessColdwave(o outlook, conf float64) RiskAssessment {
	var level RiskLevel
	switch t := o.minTemp; {
	case t > 0:
		level = RiskVeryLow
	case t > -5:
		level = RiskLow
	case t > -15:
		level = RiskModerate
	case t > -25:
		level = RiskHigh
	default:
		level = RiskExtreme
	}
	var factors []string
	if o.minTemp <= 0 {
		factors = append(factors, "freezing temperatures")
	}
	if o.minTemp <= -15 && o.maxWind >= 8 {
		factors = append(factors, "wind chill")
	}
	return RiskAssessment{Risk: level, Confidence: conf, Factors: factors}
}

// assessDrought scores dryness: humidity <30% (+2) or <50% (+1), dry forecast
// days >=80% (+2) or >=50% (+1), and no measurable precipitation (+1). The
// score is read directly as a rank, so 0 and 1 are both very-low.
func assessDrought(o outlook, conf float64) RiskAssessment {
	score := 0
	var factors []string
	switch {
	case o.humidity < 30:
		score += 2
		factors = append(factors, "very low humidity")
	case o.humidity < 50:
		score++
	}
	switch {
	case o.dryFraction >= 0.8:
		score += 2
		factors = append(factors, "extended dry period")
	case o.dryFraction >= 0.5:
		score++
	}
	if o.totalPrecip < 1 {
		score++
	}
	return RiskAssessment{Risk: RiskLevelForRank(score), Confidence: conf, Factors: factors}
}

// assessWildfire combines heat, dryness and wind: temperature >=35°C (+2) or
// >=30 (+1), humidity <20% (+2) or <35% (+1), wind >=15 m/s (+1), dry
// forecast >=50% (+1).
func assessWildfire(o outlook, conf float64) RiskAssessment {
	score := 0
	var factors []string
	switch {
	case o.maxTemp >= 35:
		score += 2
		factors = append(factors, "high temperatures")
	case o.maxTemp >= 30:
		score++
	}
	switch {
	case o.humidity < 20:
		score += 2
		factors = append(factors, "critically low humidity")
	case o.humidity < 35:
		score++
	}
	if o.maxWind >= 15 {
		score++
		factors = append(factors, "strong winds")
	}
	if o.dryFraction >= 0.5 {
		score++
	}
	return RiskAssessment{Risk: RiskLevelForRank(score), Confidence: conf, Factors: factors}
}

var recommendationText = map[Hazard]Recommendation{
	HazardFlood: {
		Type:           "evacuation-readiness",
		Message:        "Monitor river levels and prepare evacuation routes for low-lying areas.",
		AffectedGroups: []string{"low-lying residents", "emergency services"},
	},
	HazardStorm: {
		Type:           "shelter",
		Message:        "Secure loose objects and advise residents to shelter indoors during peak winds.",
		AffectedGroups: []string{"general public", "utility crews"},
	},
	HazardHeatwave: {
		Type:           "health",
		Message:        "Open cooling centers and check on vulnerable residents.",
		AffectedGroups: []string{"elderly", "outdoor workers", "children"},
	},
	HazardColdwave: {
		Type:           "health",
		Message:        "Open warming shelters and protect exposed water infrastructure.",
		AffectedGroups: []string{"homeless", "elderly"},
	},
	HazardDrought: {
		Type:           "resource",
		Message:        "Introduce water-use restrictions and monitor supply reservoirs.",
		AffectedGroups: []string{"agriculture", "municipal water"},
	},
	HazardWildfire: {
		Type:           "fire-prevention",
		Message:        "Restrict open burning and pre-position firefighting resources.",
		AffectedGroups: []string{"wildland-urban interface residents", "fire services"},
	},
}

// recommend emits one recommendation per hazard at high or extreme, in
// Hazards order.
func recommend(hazards map[Hazard]RiskAssessment) []Recommendation {
	var out []Recommendation
	for _, h := range Hazards {
		level := hazards[h].Risk
		if level.Rank() < RiskHigh.Rank() {
			continue
		}
		r := recommendationText[h]
		r.AffectedGroups = append([]string(nil), r.AffectedGroups...)
		if level == RiskExtreme {
			r.Priority, r.Timeframe = "critical", "immediate"
		} else {
			r.Priority, r.Timeframe = "high", "next 24 hours"
		}
		out = append(out, r)
	}
	return out
}

// Per-hour rates below these magnitudes are reported as stable.
const (
	stableTemperatureRate   = 0.1
	stablePrecipitationRate = 0.1
	stablePressureRate      = 0.1
)

// computeTrends prefers the hourly series and falls back to daily forecasts.
func computeTrends(s Snapshot) Trends {
	if len(s.Hourly) >= 2 {
		first, last := s.Hourly[0], s.Hourly[len(s.Hourly)-1]
		hours := last.Time.Sub(first.Time).Hours()
		return Trends{
			Temperature:   trend(last.Temperature-first.Temperature, hours, stableTemperatureRate),
			Precipitation: trend(last.Precipitation.Total()-first.Precipitation.Total(), hours, stablePrecipitationRate),
			Pressure:      trend(last.Pressure-first.Pressure, hours, stablePressureRate),
		}
	}
	if len(s.Forecast) >= 2 {
		first, last := s.Forecast[0], s.Forecast[len(s.Forecast)-1]
		hours := last.Date.Sub(first.Date).Hours()
		return Trends{
			Temperature:   trend(last.Temperature.Max-first.Temperature.Max, hours, stableTemperatureRate),
			Precipitation: trend(last.Precipitation.Total()-first.Precipitation.Total(), hours, stablePrecipitationRate),
			Pressure:      trend(last.Pressure-first.Pressure, hours, stablePressureRate),
		}
	}
	stable := Trend{Direction: "stable"}
	return Trends{Temperature: stable, Precipitation: stable, Pressure: stable}
}

func trend(delta, hours, stableBelow float64) Trend {
	if hours <= 0 {
		return Trend{Direction: "stable"}
	}
	rate := round2(delta / hours)
	switch {
	case math.Abs(rate) < stableBelow:
		return Trend{Direction: "stable", Rate: rate}
	case rate > 0:
		return Trend{Direction: "rising", Rate: rate}
	default:
		return Trend{Direction: "falling", Rate: rate}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
