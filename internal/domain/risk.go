package domain

import (
	"math"
	"slices"
	"strings"
)

// DefaultAnalysisConfidence is applied when an analysis carries no overall
// confidence.
const DefaultAnalysisConfidence = 75

// RiskSummary is the quick-display projection of a snapshot's risk block.
type RiskSummary struct {
	Overall  RiskLevel `json:"overall"`
	Flood    RiskLevel `json:"flood"`
	Storm    RiskLevel `json:"storm"`
	Wildfire RiskLevel `json:"wildfire"`
	Heatwave RiskLevel `json:"heatwave"`
}

// ConditionsSummary is a flat projection of current conditions.
type ConditionsSummary struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Location    string  `json:"location"`
}

// HazardLevel returns the level recorded for h, or the overall level for
// HazardOverall. Absent or unrecognized levels yield RiskUnknown.
func (s Snapshot) HazardLevel(h Hazard) RiskLevel {
	if s.Analysis == nil {
		return RiskUnknown
	}
	var level RiskLevel
	if h == HazardOverall {
		level = s.Analysis.RiskAssessment.Overall
	} else {
		ra, ok := s.Analysis.RiskAssessment.Hazards[h]
		if !ok {
			return RiskUnknown
		}
		level = ra.Risk
	}
	if !level.Valid() {
		return RiskUnknown
	}
	return level
}

// AnalysisConfidence returns Analysis.Confidence.Overall, or 0 when the
// snapshot has no analysis or the analysis carries no confidence.
func (s Snapshot) AnalysisConfidence() float64 {
	if s.Analysis == nil || s.Analysis.Confidence.Overall == nil {
		return 0
	}
	return *s.Analysis.Confidence.Overall
}

// Summarize extracts the headline hazard levels. It never fails.
func Summarize(s Snapshot) RiskSummary {
	return RiskSummary{
		Overall:  s.HazardLevel(HazardOverall),
		Flood:    s.HazardLevel(HazardFlood),
		Storm:    s.HazardLevel(HazardStorm),
		Wildfire: s.HazardLevel(HazardWildfire),
		Heatwave: s.HazardLevel(HazardHeatwave),
	}
}

// CurrentSummary projects current conditions, or returns ErrNotReady when the
// snapshot has none.
func CurrentSummary(s Snapshot) (ConditionsSummary, error) {
	if s.Current == nil {
		return ConditionsSummary{}, ErrNotReady
	}
	return ConditionsSummary{
		Temperature: s.Current.Temperature.Value,
		Condition:   s.Current.Condition.Main,
		Humidity:    s.Current.Humidity,
		WindSpeed:   s.Current.Wind.Speed,
		Location:    s.Location.DisplayName(),
	}, nil
}

// NormalizeAnalysis brings an analysis block into canonical form in place:
// level spellings are canonicalized, unknown hazard keys are dropped,
// confidences are clamped to [0,100], factors are de-duplicated and sorted,
// a missing overall level becomes the highest hazard level, and a missing
// overall confidence becomes DefaultAnalysisConfidence.
func NormalizeAnalysis(a *Analysis) {
	hazards := make(map[Hazard]RiskAssessment, len(a.RiskAssessment.Hazards))
	highest := RiskUnknown
	for h, ra := range a.RiskAssessment.Hazards {
		h = Hazard(strings.ToLower(string(h)))
		if !h.Known() {
			continue
		}
		if level, ok := ParseRiskLevel(string(ra.Risk)); ok {
			ra.Risk = level
		}
		ra.Confidence = clampPercent(ra.Confidence)
		ra.Factors = normalizeFactors(ra.Factors)
		hazards[h] = ra
		if ra.Risk.Valid() {
			highest = MaxRiskLevel(highest, ra.Risk)
		}
	}
	a.RiskAssessment.Hazards = hazards

	if level, ok := ParseRiskLevel(string(a.RiskAssessment.Overall)); ok {
		a.RiskAssessment.Overall = level
	} else if highest.Valid() {
		a.RiskAssessment.Overall = highest
	}

	conf := float64(DefaultAnalysisConfidence)
	if a.Confidence.Overall != nil {
		conf = clampPercent(*a.Confidence.Overall)
	}
	a.Confidence.Overall = &conf
}

func normalizeFactors(factors []string) []string {
	if len(factors) == 0 {
		return nil
	}
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 100)
}
