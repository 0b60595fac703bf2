package domain

import (
	"slices"
	"sort"
	"time"
)

// IsActiveAt reports whether start <= now < end. A zero Start or End leaves
// that side of the window open.
func (a Alert) IsActiveAt(now time.Time) bool {
	if !a.Start.IsZero() && now.Before(a.Start) {
		return false
	}
	if !a.End.IsZero() && !now.Before(a.End) {
		return false
	}
	return true
}

// ActiveAlerts returns copies of the alerts active at now, highest severity
// first. Alerts of equal severity keep their original relative order; unknown
// severities sort last.
func ActiveAlerts(s Snapshot, now time.Time) []Alert {
	out := make([]Alert, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		if a.IsActiveAt(now) {
			a.Areas = slices.Clone(a.Areas)
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Weight() > out[j].Severity.Weight()
	})
	return out
}
