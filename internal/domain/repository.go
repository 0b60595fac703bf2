package domain

import (
	"context"
	"strings"
	"time"
)

// Query narrows a repository scan. Zero-valued fields do not filter.
// Repositories may return a superset; the store re-applies Matches and the
// exact geometric predicates.
type Query struct {
	// Bounds matches snapshots inside any of the boxes.
	Bounds []BBox
	// NameContains is a case-insensitive substring of Location.Name or Location.City.
	NameContains string
	// ObservedSince keeps snapshots with ObservationTime >= ObservedSince.
	ObservedSince time.Time
	// ActiveAt keeps snapshots with ExpiresAt > ActiveAt.
	ActiveAt time.Time
	// Hazard and MinRisk keep snapshots whose level for Hazard is at least MinRisk.
	Hazard  Hazard
	MinRisk RiskLevel
}

// Matches applies every filter in q to s.
func (q Query) Matches(s Snapshot) bool {
	if len(q.Bounds) > 0 {
		c, ok := s.Coordinates()
		if !ok {
			return false
		}
		inside := false
		for _, b := range q.Bounds {
			if b.Contains(c) {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	if q.NameContains != "" && !MatchesName(s.Location, q.NameContains) {
		return false
	}
	if !q.ObservedSince.IsZero() && s.ObservationTime().Before(q.ObservedSince) {
		return false
	}
	if !q.ActiveAt.IsZero() && !s.IsActive(q.ActiveAt) {
		return false
	}
	if q.Hazard != "" && !s.HazardLevel(q.Hazard).AtLeast(q.MinRisk) {
		return false
	}
	return true
}

// MatchesName reports a case-insensitive substring match of pattern against
// the location name or city.
func MatchesName(l Location, pattern string) bool {
	p := strings.ToLower(pattern)
	return strings.Contains(strings.ToLower(l.Name), p) || strings.Contains(strings.ToLower(l.City), p)
}

// Repository persists snapshots. Implementations must make Upsert atomic per
// id and must serialize it against DeleteExpired so that a record refreshed by
// a concurrent Upsert is never removed on the strength of its old ExpiresAt.
// Returned snapshots never alias repository state.
type Repository interface {
	// Upsert loads the current record for id (nil if absent), passes a copy to
	// build, and stores the result. It fails with ErrConflict if the built
	// CacheKey is held by a different snapshot that is still active at now;
	// an expired holder is removed.
	Upsert(ctx context.Context, id string, now time.Time, build func(existing *Snapshot) (Snapshot, error)) (Snapshot, error)
	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (Snapshot, error)
	// GetByCacheKey returns the record for key if it is active at now, else ErrNotFound.
	GetByCacheKey(ctx context.Context, key string, now time.Time) (Snapshot, error)
	// Find returns records that may match q.
	Find(ctx context.Context, q Query) ([]Snapshot, error)
	// DeleteExpired removes records with ExpiresAt < now and returns how many.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
