package domain

import "strings"

// RiskLevel is the ordered five-level hazard risk scale.
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskVeryLow  RiskLevel = "very-low"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskExtreme  RiskLevel = "extreme"
)

// RiskLevels lists the real levels in ascending order.
var RiskLevels = []RiskLevel{RiskVeryLow, RiskLow, RiskModerate, RiskHigh, RiskExtreme}

// Rank returns 1 (very-low) through 5 (extreme), or 0 for unknown and
// unrecognized values.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskVeryLow:
		return 1
	case RiskLow:
		return 2
	case RiskModerate:
		return 3
	case RiskHigh:
		return 4
	case RiskExtreme:
		return 5
	default:
		return 0
	}
}

// Valid reports whether l is one of the five real levels.
func (l RiskLevel) Valid() bool {
	return l.Rank() > 0
}

// AtLeast reports whether l is at or above min. Extreme always qualifies.
func (l RiskLevel) AtLeast(min RiskLevel) bool {
	if l == RiskExtreme {
		return true
	}
	return l.Valid() && l.Rank() >= min.Rank()
}

// ParseRiskLevel accepts the canonical names case-insensitively, plus the
// "very_low"/"verylow" spellings some providers emit.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "very-low", "very_low", "verylow":
		return RiskVeryLow, true
	case "low":
		return RiskLow, true
	case "moderate":
		return RiskModerate, true
	case "high":
		return RiskHigh, true
	case "extreme":
		return RiskExtreme, true
	default:
		return RiskUnknown, false
	}
}

// RiskLevelForRank is the inverse of Rank, clamping out-of-range input.
func RiskLevelForRank(rank int) RiskLevel {
	switch {
	case rank <= 1:
		return RiskVeryLow
	case rank >= 5:
		return RiskExtreme
	default:
		return RiskLevels[rank-1]
	}
}

// MaxRiskLevel returns the higher-ranked of a and b.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AlertSeverity is the four-level alert severity scale. It is unrelated to
// RiskLevel even though both contain "moderate" and "extreme".
type AlertSeverity string

const (
	AlertMinor    AlertSeverity = "minor"
	AlertModerate AlertSeverity = "moderate"
	AlertSevere   AlertSeverity = "severe"
	AlertExtreme  AlertSeverity = "extreme"
)

// Weight maps extreme=4, severe=3, moderate=2, minor=1 and anything else to 0.
func (s AlertSeverity) Weight() int {
	switch s {
	case AlertExtreme:
		return 4
	case AlertSevere:
		return 3
	case AlertModerate:
		return 2
	case AlertMinor:
		return 1
	default:
		return 0
	}
}

// Hazard identifies a disaster category.
type Hazard string

const (
	HazardFlood    Hazard = "flood"
	HazardStorm    Hazard = "storm"
	HazardHeatwave Hazard = "heatwave"
	HazardColdwave Hazard = "coldwave"
	HazardDrought  Hazard = "drought"
	HazardWildfire Hazard = "wildfire"

	// HazardOverall selects RiskProfile.Overall in hazard-generic queries.
	HazardOverall Hazard = "overall"
)

// Hazards lists every real hazard in a stable order.
var Hazards = []Hazard{HazardFlood, HazardStorm, HazardHeatwave, HazardColdwave, HazardDrought, HazardWildfire}

// Known reports whether h is a real hazard (HazardOverall is not).
func (h Hazard) Known() bool {
	switch h {
	case HazardFlood, HazardStorm, HazardHeatwave, HazardColdwave, HazardDrought, HazardWildfire:
		return true
	default:
		return false
	}
}

// ParseHazard accepts a hazard name or "overall".
func ParseHazard(s string) (Hazard, bool) {
	h := Hazard(strings.ToLower(strings.TrimSpace(s)))
	if h == HazardOverall || h.Known() {
		return h, true
	}
	return "", false
}
