package domain

import (
	"math"
	"strconv"
	"time"
)

const (
	// DefaultTTL is the lifetime of a snapshot whose ExpiresAt was not supplied.
	DefaultTTL = 6 * time.Hour
	// DefaultCacheKeyWindow aligns cache keys to a typical provider polling
	// interval so repeated polls of one place deduplicate.
	DefaultCacheKeyWindow = 15 * time.Minute
	// DefaultFreshnessMaxAge is the IsFresh threshold used when none is given.
	DefaultFreshnessMaxAge = 2 * time.Hour
)

// Policy holds the expiry and cache-key parameters. All methods are pure.
type Policy struct {
	TTL time.Duration
	// CacheKeyWindow truncates CreatedAt before it is folded into the key.
	// Zero keeps the exact millisecond tick.
	CacheKeyWindow time.Duration
}

// DefaultPolicy returns a Policy with DefaultTTL and DefaultCacheKeyWindow.
func DefaultPolicy() Policy {
	return Policy{TTL: DefaultTTL, CacheKeyWindow: DefaultCacheKeyWindow}
}

// DefaultExpiry returns createdAt + TTL.
func (p Policy) DefaultExpiry(createdAt time.Time) time.Time {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return createdAt.Add(ttl)
}

// DeriveCacheKey composes latitude and longitude rounded to three decimals
// with the creation tick, e.g. "40.123_-74.456_1714143600000".
func (p Policy) DeriveCacheKey(lat, lon float64, createdAt time.Time) string {
	tick := createdAt.UTC()
	if p.CacheKeyWindow > 0 {
		tick = tick.Truncate(p.CacheKeyWindow)
	}
	return roundCoordinate(lat) + "_" + roundCoordinate(lon) + "_" + strconv.FormatInt(tick.UnixMilli(), 10)
}

func roundCoordinate(v float64) string {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		r = 0 // normalizes -0
	}
	return strconv.FormatFloat(r, 'f', 3, 64)
}

// IsFresh reports whether now - observationTime < maxAge. A snapshot with no
// observation time is never fresh.
func IsFresh(s Snapshot, maxAge time.Duration, now time.Time) bool {
	obs := s.ObservationTime()
	if obs.IsZero() {
		return false
	}
	return now.Sub(obs) < maxAge
}
