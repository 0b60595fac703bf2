// Package store implements the snapshot store: validated, normalized writes
// and the freshness-aware read paths, over any domain.Repository backend.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

// Defaults applied when a read path receives a zero argument.
const (
	DefaultRadiusKm        = 50.0
	DefaultQueryMaxAge     = 3 * time.Hour
	DefaultRegionTimeRange = 24 * time.Hour
)

// cancelCheckInterval is how many results a filter pass visits between
// context checks.
const cancelCheckInterval = 64

// Options holds the process-wide policy and query defaults.
type Options struct {
	Policy          domain.Policy
	FreshnessMaxAge time.Duration
	QueryMaxAge     time.Duration
	QueryRadiusKm   float64
	RegionTimeRange time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Policy:          domain.DefaultPolicy(),
		FreshnessMaxAge: domain.DefaultFreshnessMaxAge,
		QueryMaxAge:     DefaultQueryMaxAge,
		QueryRadiusKm:   DefaultRadiusKm,
		RegionTimeRange: DefaultRegionTimeRange,
	}
}

// Store is the single snapshot store instance shared by ingestion, the
// sweeper, and query callers. It is safe for concurrent use.
type Store struct {
	repo    domain.Repository
	clock   clockwork.Clock
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Store. Zero-valued option fields take their defaults.
func New(repo domain.Repository, clock clockwork.Clock, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Store {
	def := DefaultOptions()
	if opts.Policy.TTL <= 0 {
		opts.Policy.TTL = def.Policy.TTL
	}
	if opts.FreshnessMaxAge <= 0 {
		opts.FreshnessMaxAge = def.FreshnessMaxAge
	}
	if opts.QueryMaxAge <= 0 {
		opts.QueryMaxAge = def.QueryMaxAge
	}
	if opts.QueryRadiusKm <= 0 {
		opts.QueryRadiusKm = def.QueryRadiusKm
	}
	if opts.RegionTimeRange <= 0 {
		opts.RegionTimeRange = def.RegionTimeRange
	}
	return &Store{repo: repo, clock: clock, opts: opts, logger: logger, metrics: metrics}
}

// Put inserts or replaces a snapshot by ID and returns the stored version.
// A missing ID is assigned. ExpiresAt, CacheKey, timestamps, and Version are
// stamped inside the repository's atomic write.
func (s *Store) Put(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	snap = snap.Clone()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	for i := range snap.Alerts {
		if snap.Alerts[i].ID == "" {
			snap.Alerts[i].ID = uuid.NewString()
		}
	}

	if err := domain.Validate(snap); err != nil {
		s.metrics.SnapshotsPut.WithLabelValues("invalid").Inc()
		return domain.Snapshot{}, err
	}

	now := s.clock.Now()
	saved, err := s.repo.Upsert(ctx, snap.ID, now, func(existing *domain.Snapshot) (domain.Snapshot, error) {
		next := snap.Clone()
		if err := domain.Prepare(&next, existing, now, s.opts.Policy); err != nil {
			return domain.Snapshot{}, err
		}
		return next, nil
	})
	if err != nil {
		s.metrics.SnapshotsPut.WithLabelValues(putOutcome(err)).Inc()
		return domain.Snapshot{}, err
	}

	s.metrics.SnapshotsPut.WithLabelValues("stored").Inc()
	s.logger.Debug("snapshot stored",
		"snapshot_id", saved.ID,
		"cache_key", saved.CacheKey,
		"version", saved.Version,
		"expires_at", saved.ExpiresAt,
	)
	return saved, nil
}

func putOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// Get returns the snapshot with the given ID, expired or not, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	defer s.observe("get")()
	return s.repo.Get(ctx, id)
}

// FindByCacheKey returns the live snapshot holding key, or ErrNotFound if
// none exists or it has expired.
func (s *Store) FindByCacheKey(ctx context.Context, key string) (domain.Snapshot, error) {
	defer s.observe("find_by_cache_key")()
	return s.repo.GetByCacheKey(ctx, key, s.clock.Now())
}

// FindNearby returns live snapshots within radiusKm great-circle distance of
// the point, observed no more than maxAge ago, most recent first. Zero
// arguments take the configured defaults.
func (s *Store) FindNearby(ctx context.Context, lon, lat, radiusKm float64, maxAge time.Duration) ([]domain.Snapshot, error) {
	defer s.observe("find_nearby")()

	center := domain.Coordinates{Longitude: lon, Latitude: lat}
	if !center.Valid() {
		return nil, &domain.ValidationError{Field: "coordinates", Reason: "out of range"}
	}
	if radiusKm < 0 {
		return nil, &domain.ValidationError{Field: "radiusKm", Reason: "must not be negative"}
	}
	if radiusKm == 0 {
		radiusKm = s.opts.QueryRadiusKm
	}
	maxAge, err := s.queryMaxAge(maxAge)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	q := domain.Query{
		Bounds:        domain.RadiusBounds(center, radiusKm),
		ObservedSince: now.Add(-maxAge),
		ActiveAt:      now,
	}
	out, err := s.find(ctx, q, func(snap domain.Snapshot) bool {
		c, _ := snap.Coordinates()
		return domain.HaversineKm(center, c) <= radiusKm
	})
	if err != nil {
		return nil, err
	}
	sortByObservation(out)
	return out, nil
}

// FindByLocation returns live snapshots whose name or city contains pattern,
// case-insensitively, observed no more than maxAge ago, most recent first.
func (s *Store) FindByLocation(ctx context.Context, pattern string, maxAge time.Duration) ([]domain.Snapshot, error) {
	defer s.observe("find_by_location")()

	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, &domain.ValidationError{Field: "namePattern", Reason: "required"}
	}
	maxAge, err := s.queryMaxAge(maxAge)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out, err := s.find(ctx, domain.Query{
		NameContains:  pattern,
		ObservedSince: now.Add(-maxAge),
		ActiveAt:      now,
	}, nil)
	if err != nil {
		return nil, err
	}
	sortByObservation(out)
	return out, nil
}

// HighRiskAreas returns live snapshots whose level for hazard (or the overall
// level for domain.HazardOverall) is at least minLevel, ordered by analysis
// confidence, highest first. Extreme always qualifies.
func (s *Store) HighRiskAreas(ctx context.Context, hazard domain.Hazard, minLevel domain.RiskLevel) ([]domain.Snapshot, error) {
	defer s.observe("high_risk_areas")()

	h, ok := domain.ParseHazard(string(hazard))
	if !ok {
		return nil, &domain.ValidationError{Field: "hazard", Reason: "unknown hazard " + string(hazard)}
	}
	level, ok := domain.ParseRiskLevel(string(minLevel))
	if !ok {
		return nil, &domain.ValidationError{Field: "minLevel", Reason: "unknown risk level " + string(minLevel)}
	}

	out, err := s.find(ctx, domain.Query{ActiveAt: s.clock.Now(), Hazard: h, MinRisk: level}, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].AnalysisConfidence(), out[j].AnalysisConfidence()
		if ci != cj {
			return ci > cj
		}
		return ranksAfter(out[j], out[i])
	})
	return out, nil
}

// RegionStats aggregates current conditions over live snapshots inside
// boundary observed within timeRange of now.
func (s *Store) RegionStats(ctx context.Context, boundary domain.Polygon, timeRange time.Duration) (domain.RegionStats, error) {
	defer s.observe("region_stats")()

	if err := boundary.Validate(); err != nil {
		return domain.RegionStats{}, err
	}
	if timeRange < 0 {
		return domain.RegionStats{}, &domain.ValidationError{Field: "timeRange", Reason: "must not be negative"}
	}
	if timeRange == 0 {
		timeRange = s.opts.RegionTimeRange
	}

	now := s.clock.Now()
	q := domain.Query{
		Bounds:        []domain.BBox{boundary.Bounds()},
		ObservedSince: now.Add(-timeRange),
		ActiveAt:      now,
	}
	matched, err := s.find(ctx, q, func(snap domain.Snapshot) bool {
		c, _ := snap.Coordinates()
		return boundary.Contains(c)
	})
	if err != nil {
		return domain.RegionStats{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RegionStats{}, domain.Canceled(err)
	}
	return domain.ComputeRegionStats(matched), nil
}

// DeleteExpired removes snapshots with ExpiresAt before now and returns how
// many were removed. A zero now uses the store clock.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.clock.Now()
	}
	return s.repo.DeleteExpired(ctx, now)
}

// IsFresh applies the freshness policy at the store clock's now. A zero
// maxAge uses the configured default.
func (s *Store) IsFresh(snap domain.Snapshot, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = s.opts.FreshnessMaxAge
	}
	return domain.IsFresh(snap, maxAge, s.clock.Now())
}

// ActiveAlerts ranks the snapshot's alerts active at the store clock's now.
func (s *Store) ActiveAlerts(snap domain.Snapshot) []domain.Alert {
	return domain.ActiveAlerts(snap, s.clock.Now())
}

// CheckReadiness reports whether the backing repository is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close releases the backing repository.
func (s *Store) Close() error {
	return s.repo.Close()
}

// find queries the repository and re-applies the query plus an optional exact
// predicate, since repositories may return a superset.
func (s *Store) find(ctx context.Context, q domain.Query, keep func(domain.Snapshot) bool) ([]domain.Snapshot, error) {
	candidates, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(candidates))
	for i, snap := range candidates {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, domain.Canceled(err)
			}
		}
		if !q.Matches(snap) {
			continue
		}
		if keep != nil && !keep(snap) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) queryMaxAge(maxAge time.Duration) (time.Duration, error) {
	if maxAge < 0 {
		return 0, &domain.ValidationError{Field: "maxAge", Reason: "must not be negative"}
	}
	if maxAge == 0 {
		return s.opts.QueryMaxAge, nil
	}
	return maxAge, nil
}

// observe counts a read and returns a func recording its duration.
func (s *Store) observe(op string) func() {
	s.metrics.Queries.WithLabelValues(op).Inc()
	start := time.Now()
	return func() {
		s.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// sortByObservation orders by observation time descending, ID ascending on ties.
func sortByObservation(snaps []domain.Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return ranksAfter(snaps[j], snaps[i])
	})
}

// ranksAfter reports whether a comes after b in most-recent-first order.
func ranksAfter(a, b domain.Snapshot) bool {
	ta, tb := a.ObservationTime(), b.ObservationTime()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.ID > b.ID
}
