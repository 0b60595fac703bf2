// Package postgres implements the snapshot repository on PostgreSQL via pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/sqlrow"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	cancelCheckInterval = 128
	uniqueViolation     = "23505"
)

// Repository is a domain.Repository on a pgx connection pool. Upserts take a
// transaction-scoped advisory lock on the snapshot id and row locks on the
// records they touch.
type Repository struct {
	pool *pgxpool.Pool
}

var _ domain.Repository = (*Repository)(nil)

// Open connects to databaseURL and runs the embedded migrations.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, id string, now time.Time, build func(existing *domain.Snapshot) (domain.Snapshot, error)) (domain.Snapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Snapshot{}, domain.Unavailable("begin upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row locks cannot cover an id that does not exist yet.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
		return domain.Snapshot{}, domain.Unavailable("lock snapshot", err)
	}

	var existing *domain.Snapshot
	var body []byte
	switch err := tx.QueryRow(ctx, `SELECT body FROM snapshots WHERE id = $1 FOR UPDATE`, id).Scan(&body); {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return domain.Snapshot{}, domain.Unavailable("load snapshot", err)
	default:
		cur, err := sqlrow.Decode(body)
		if err != nil {
			return domain.Snapshot{}, domain.Unavailable("load snapshot", err)
		}
		existing = &cur
	}

	next, err := build(existing)
	if err != nil {
		return domain.Snapshot{}, err
	}
	next.ID = id

	if next.CacheKey != "" {
		if err := releaseKey(ctx, tx, next.CacheKey, id, now); err != nil {
			return domain.Snapshot{}, err
		}
	}

	row, err := sqlrow.FromSnapshot(next)
	if err != nil {
		return domain.Snapshot{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (id, cache_key, longitude, latitude, name_lower, city_lower, observed_at, created_at, expires_at, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			cache_key = EXCLUDED.cache_key,
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			name_lower = EXCLUDED.name_lower,
			city_lower = EXCLUDED.city_lower,
			observed_at = EXCLUDED.observed_at,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			body = EXCLUDED.body
	`, row.ID, row.CacheKey, row.Longitude, row.Latitude, row.NameLower, row.CityLower, row.ObservedAt, row.CreatedAt, row.ExpiresAt, string(row.Body))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Snapshot{}, &domain.ConflictError{CacheKey: next.CacheKey}
		}
		return domain.Snapshot{}, domain.Unavailable("write snapshot", err)
	}
	if err := writeRisks(ctx, tx, row); err != nil {
		return domain.Snapshot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Snapshot{}, domain.Unavailable("commit upsert", err)
	}
	return next, nil
}

func writeRisks(ctx context.Context, tx pgx.Tx, row sqlrow.Row) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM snapshot_risks WHERE snapshot_id = $1`, row.ID)
	for _, risk := range row.Risks {
		batch.Queue(`INSERT INTO snapshot_risks (snapshot_id, hazard, risk_rank, created_at) VALUES ($1, $2, $3, $4)`,
			row.ID, risk.Hazard, risk.Rank, row.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Unavailable("write risks", err)
	}
	return nil
}

func releaseKey(ctx context.Context, tx pgx.Tx, key, id string, now time.Time) error {
	var (
		holderID  string
		expiresAt int64
	)
	err := tx.QueryRow(ctx, `SELECT id, expires_at FROM snapshots WHERE cache_key = $1 AND id <> $2 FOR UPDATE`, key, id).
		Scan(&holderID, &expiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil
	case err != nil:
		return domain.Unavailable("check cache key", err)
	}
	if expiresAt > sqlrow.Nanos(now) {
		return &domain.ConflictError{CacheKey: key, ExistingID: holderID}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, holderID); err != nil {
		return domain.Unavailable("evict expired holder", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	return r.one(ctx, `SELECT body FROM snapshots WHERE id = $1`, id)
}

func (r *Repository) GetByCacheKey(ctx context.Context, key string, now time.Time) (domain.Snapshot, error) {
	return r.one(ctx, `SELECT body FROM snapshots WHERE cache_key = $1 AND expires_at > $2`, key, sqlrow.Nanos(now))
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (domain.Snapshot, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, query, args...).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, domain.Unavailable("get snapshot", err)
	}
	s, err := sqlrow.Decode(body)
	if err != nil {
		return domain.Snapshot{}, domain.Unavailable("get snapshot", err)
	}
	return s, nil
}

func (r *Repository) Find(ctx context.Context, q domain.Query) ([]domain.Snapshot, error) {
	where, args := sqlrow.Filter(q, sqlrow.Postgres, 0)
	rows, err := r.pool.Query(ctx, `SELECT body FROM snapshots`+where, args...)
	if err != nil {
		return nil, domain.Unavailable("find snapshots", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for n := 0; rows.Next(); n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, domain.Canceled(err)
			}
		}
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, domain.Unavailable("scan snapshot", err)
		}
		s, err := sqlrow.Decode(body)
		if err != nil {
			return nil, domain.Unavailable("scan snapshot", err)
		}
		if q.Matches(s) {
			out = append(out, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("find snapshots", err)
	}
	return out, nil
}

// DeleteExpired blocks on rows locked by in-flight upserts and re-checks
// expires_at once they commit.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM snapshots WHERE expires_at < $1`, sqlrow.Nanos(now))
	if err != nil {
		return 0, domain.Unavailable("delete expired", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return domain.Unavailable("ping", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}
