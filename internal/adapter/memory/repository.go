// Package memory implements an in-process snapshot repository with a uniform
// lon/lat grid index.
package memory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// LinearScanThreshold is the record count below which bounded queries scan
// every record instead of consulting the grid.
const LinearScanThreshold = 256

// cancelCheckInterval is how many records a scan visits between context checks.
const cancelCheckInterval = 128

type cell struct{ x, y int }

// Repository is a domain.Repository backed by maps. A single RWMutex guards
// all state, which serializes Upsert against DeleteExpired.
type Repository struct {
	mu          sync.RWMutex
	records     map[string]domain.Snapshot
	byCacheKey  map[string]string
	grid        map[cell]map[string]struct{}
	cellDegrees float64
}

var _ domain.Repository = (*Repository)(nil)

// New creates an empty repository. cellDegrees <= 0 selects one-degree cells.
func New(cellDegrees float64) *Repository {
	if cellDegrees <= 0 {
		cellDegrees = 1
	}
	return &Repository{
		records:     make(map[string]domain.Snapshot),
		byCacheKey:  make(map[string]string),
		grid:        make(map[cell]map[string]struct{}),
		cellDegrees: cellDegrees,
	}
}

func (r *Repository) Upsert(ctx context.Context, id string, now time.Time, build func(existing *domain.Snapshot) (domain.Snapshot, error)) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, domain.Canceled(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var existing *domain.Snapshot
	if cur, ok := r.records[id]; ok {
		c := cur.Clone()
		existing = &c
	}

	next, err := build(existing)
	if err != nil {
		return domain.Snapshot{}, err
	}
	next.ID = id

	if key := next.CacheKey; key != "" {
		if holderID, ok := r.byCacheKey[key]; ok && holderID != id {
			holder := r.records[holderID]
			if holder.IsActive(now) {
				return domain.Snapshot{}, &domain.ConflictError{CacheKey: key, ExistingID: holderID}
			}
			r.remove(holderID)
		}
	}

	r.remove(id)
	r.insert(next.Clone())
	return next, nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, domain.Canceled(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.records[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *Repository) GetByCacheKey(ctx context.Context, key string, now time.Time) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, domain.Canceled(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCacheKey[key]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	s := r.records[id]
	if !s.IsActive(now) {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *Repository) Find(ctx context.Context, q domain.Query) ([]domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Canceled(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Snapshot
	visit := func(n int, s domain.Snapshot) error {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return domain.Canceled(err)
			}
		}
		if q.Matches(s) {
			out = append(out, s.Clone())
		}
		return nil
	}

	if ids, ok := r.candidates(q.Bounds); ok {
		n := 0
		for id := range ids {
			if err := visit(n, r.records[id]); err != nil {
				return nil, err
			}
			n++
		}
		return out, nil
	}

	n := 0
	for _, s := range r.records {
		if err := visit(n, s); err != nil {
			return nil, err
		}
		n++
	}
	return out, nil
}

// candidates returns the ids indexed under the cells covering bounds. It
// reports false when a full scan is cheaper: no bounds, a small data set, or
// more cells to probe than records stored.
func (r *Repository) candidates(bounds []domain.BBox) (map[string]struct{}, bool) {
	if len(bounds) == 0 || len(r.records) < LinearScanThreshold {
		return nil, false
	}
	cells := 0
	for _, b := range bounds {
		lo, hi := r.cellOf(b.MinLon, b.MinLat), r.cellOf(b.MaxLon, b.MaxLat)
		cells += (hi.x - lo.x + 1) * (hi.y - lo.y + 1)
	}
	if cells > len(r.records) {
		return nil, false
	}

	ids := make(map[string]struct{})
	for _, b := range bounds {
		lo, hi := r.cellOf(b.MinLon, b.MinLat), r.cellOf(b.MaxLon, b.MaxLat)
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				for id := range r.grid[cell{x, y}] {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids, true
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.Canceled(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.records {
		if s.IsExpired(now) {
			r.remove(id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Repository) Close() error { return nil }

// Len returns the number of stored records, expired ones included.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Repository) cellOf(lon, lat float64) cell {
	return cell{
		x: int(math.Floor(lon / r.cellDegrees)),
		y: int(math.Floor(lat / r.cellDegrees)),
	}
}

// insert and remove must be called with mu held for writing.
func (r *Repository) insert(s domain.Snapshot) {
	r.records[s.ID] = s
	if s.CacheKey != "" {
		r.byCacheKey[s.CacheKey] = s.ID
	}
	if c, ok := s.Coordinates(); ok {
		k := r.cellOf(c.Longitude, c.Latitude)
		if r.grid[k] == nil {
			r.grid[k] = make(map[string]struct{})
		}
		r.grid[k][s.ID] = struct{}{}
	}
}

func (r *Repository) remove(id string) {
	s, ok := r.records[id]
	if !ok {
		return
	}
	delete(r.records, id)
	if s.CacheKey != "" && r.byCacheKey[s.CacheKey] == id {
		delete(r.byCacheKey, s.CacheKey)
	}
	if c, ok := s.Coordinates(); ok {
		k := r.cellOf(c.Longitude, c.Latitude)
		delete(r.grid[k], id)
		if len(r.grid[k]) == 0 {
			delete(r.grid, k)
		}
	}
}
