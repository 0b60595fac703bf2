//go:build integration

package postgres_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/postgres"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

var now = time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)

func startPostgres(ctx context.Context, t *testing.T) *postgres.Repository {
	t.Helper()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("weather"),
		tcpostgres.WithUsername("weather"),
		tcpostgres.WithPassword("weather"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func snapshotAt(id string, lon, lat float64, key string) domain.Snapshot {
	return domain.Snapshot{
		ID:        id,
		Location:  domain.Location{Coordinates: &domain.Coordinates{Longitude: lon, Latitude: lat}, Name: id, City: "Toms River"},
		Current:   &domain.Current{ObservationTime: now},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		CacheKey:  key,
		Version:   1,
	}
}

func put(ctx context.Context, t *testing.T, r *postgres.Repository, s domain.Snapshot) {
	t.Helper()
	_, err := r.Upsert(ctx, s.ID, now, func(*domain.Snapshot) (domain.Snapshot, error) { return s, nil })
	require.NoError(t, err)
}

func ids(snaps []domain.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	sort.Strings(out)
	return out
}

func TestRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo := startPostgres(ctx, t)
	require.NoError(t, repo.Ping(ctx))

	t.Run("conflict and eviction", func(t *testing.T) {
		put(ctx, t, repo, snapshotAt("a", -74.456, 40.123, "shared"))

		_, err := repo.Upsert(ctx, "b", now, func(*domain.Snapshot) (domain.Snapshot, error) {
			return snapshotAt("b", -74.456, 40.123, "shared"), nil
		})
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "a", conflict.ExistingID)

		later := now.Add(2 * time.Hour)
		_, err = repo.Upsert(ctx, "b", later, func(*domain.Snapshot) (domain.Snapshot, error) {
			s := snapshotAt("b", -74.456, 40.123, "shared")
			s.ExpiresAt = later.Add(time.Hour)
			return s, nil
		})
		require.NoError(t, err)
		got, err := repo.GetByCacheKey(ctx, "shared", later)
		require.NoError(t, err)
		assert.Equal(t, "b", got.ID)
	})

	t.Run("concurrent upserts serialize per id", func(t *testing.T) {
		put(ctx, t, repo, snapshotAt("counter", 0, 0, ""))
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Upsert(ctx, "counter", now, func(existing *domain.Snapshot) (domain.Snapshot, error) {
					next := *existing
					next.Version++
					return next, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		got, err := repo.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, 9, got.Version)
	})

	t.Run("find and delete expired", func(t *testing.T) {
		put(ctx, t, repo, snapshotAt("paris", 2.35, 48.85, ""))
		gone := snapshotAt("gone", 2.36, 48.86, "")
		gone.ExpiresAt = now.Add(-time.Minute)
		put(ctx, t, repo, gone)

		found, err := repo.Find(ctx, domain.Query{
			Bounds:       domain.RadiusBounds(domain.Coordinates{Longitude: 2.35, Latitude: 48.85}, 10),
			NameContains: "PAR",
			ActiveAt:     now,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"paris"}, ids(found))

		n, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		_, err = repo.Get(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("hazard filter", func(t *testing.T) {
		flood := func(s domain.Snapshot, level domain.RiskLevel) domain.Snapshot {
			s.Analysis = &domain.Analysis{RiskAssessment: domain.RiskProfile{
				Overall: level,
				Hazards: map[domain.Hazard]domain.RiskAssessment{domain.HazardFlood: {Risk: level}},
			}}
			return s
		}
		put(ctx, t, repo, flood(snapshotAt("lisbon", -9.14, 38.72, ""), domain.RiskExtreme))
		put(ctx, t, repo, flood(snapshotAt("madrid", -3.7, 40.42, ""), domain.RiskLow))

		found, err := repo.Find(ctx, domain.Query{Hazard: domain.HazardFlood, MinRisk: domain.RiskHigh, ActiveAt: now})
		require.NoError(t, err)
		assert.Equal(t, []string{"lisbon"}, ids(found))

		put(ctx, t, repo, flood(snapshotAt("lisbon", -9.14, 38.72, ""), domain.RiskModerate))
		found, err = repo.Find(ctx, domain.Query{Hazard: domain.HazardFlood, MinRisk: domain.RiskHigh, ActiveAt: now})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("far future expiry", func(t *testing.T) {
		forever := snapshotAt("forever", 10, 10, "k-forever")
		forever.ExpiresAt = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
		put(ctx, t, repo, forever)

		got, err := repo.GetByCacheKey(ctx, "k-forever", now)
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.Equal(forever.ExpiresAt))

		n, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
