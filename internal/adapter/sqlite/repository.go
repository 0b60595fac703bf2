// Package sqlite implements the snapshot repository on a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/sqlrow"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

//go:embed schema.sql
var schema string

const cancelCheckInterval = 128

// Repository is a domain.Repository on database/sql with the sqlite3 driver.
// Write transactions begin IMMEDIATE, so Upsert and DeleteExpired never
// interleave.
type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Repository, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// Each connection to :memory: would see its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func buildDSN(path string) (string, error) {
	params := []string{"_busy_timeout=5000", "_txlock=immediate", "_foreign_keys=1"}
	if path == ":memory:" {
		return "file::memory:?" + strings.Join(params, "&"), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	params = append(params, "_journal_mode=WAL")
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

func (r *Repository) Upsert(ctx context.Context, id string, now time.Time, build func(existing *domain.Snapshot) (domain.Snapshot, error)) (domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, domain.Unavailable("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing *domain.Snapshot
	var body []byte
	switch err := tx.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE id = ?`, id).Scan(&body); {
	case errors.Is(err, sql.ErrNoRows):
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
		if err := r.releaseKey(ctx, tx, next.CacheKey, id, now); err != nil {
			return domain.Snapshot{}, err
		}
	}

	row, err := sqlrow.FromSnapshot(next)
	if err != nil {
		return domain.Snapshot{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, cache_key, longitude, latitude, name_lower, city_lower, observed_at, created_at, expires_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			cache_key = excluded.cache_key,
			longitude = excluded.longitude,
			latitude = excluded.latitude,
			name_lower = excluded.name_lower,
			city_lower = excluded.city_lower,
			observed_at = excluded.observed_at,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			body = excluded.body
	`, row.ID, row.CacheKey, row.Longitude, row.Latitude, row.NameLower, row.CityLower, row.ObservedAt, row.CreatedAt, row.ExpiresAt, string(row.Body))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Snapshot{}, &domain.ConflictError{CacheKey: next.CacheKey}
		}
		return domain.Snapshot{}, domain.Unavailable("write snapshot", err)
	}
	if err := writeRisks(ctx, tx, row); err != nil {
		return domain.Snapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, domain.Unavailable("commit upsert", err)
	}
	return next, nil
}

func writeRisks(ctx context.Context, tx *sql.Tx, row sqlrow.Row) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_risks WHERE snapshot_id = ?`, row.ID); err != nil {
		return domain.Unavailable("write risks", err)
	}
	for _, risk := range row.Risks {
		_, err := tx.ExecContext(ctx, `INSERT INTO snapshot_risks (snapshot_id, hazard, risk_rank, created_at) VALUES (?, ?, ?, ?)`,
			row.ID, risk.Hazard, risk.Rank, row.CreatedAt)
		if err != nil {
			return domain.Unavailable("write risks", err)
		}
	}
	return nil
}

// releaseKey fails if key is held by another live snapshot and deletes the
// holder if it has expired.
func (r *Repository) releaseKey(ctx context.Context, tx *sql.Tx, key, id string, now time.Time) error {
	var (
		holderID  string
		expiresAt int64
	)
	err := tx.QueryRowContext(ctx, `SELECT id, expires_at FROM snapshots WHERE cache_key = ? AND id <> ?`, key, id).
		Scan(&holderID, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return domain.Unavailable("check cache key", err)
	}
	if expiresAt > sqlrow.Nanos(now) {
		return &domain.ConflictError{CacheKey: key, ExistingID: holderID}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, holderID); err != nil {
		return domain.Unavailable("evict expired holder", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	return r.one(ctx, `SELECT body FROM snapshots WHERE id = ?`, id)
}

func (r *Repository) GetByCacheKey(ctx context.Context, key string, now time.Time) (domain.Snapshot, error) {
	return r.one(ctx, `SELECT body FROM snapshots WHERE cache_key = ? AND expires_at > ?`, key, sqlrow.Nanos(now))
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (domain.Snapshot, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
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
	where, args := sqlrow.Filter(q, sqlrow.SQLite, 0)
	rows, err := r.db.QueryContext(ctx, `SELECT body FROM snapshots`+where, args...)
	if err != nil {
		return nil, domain.Unavailable("find snapshots", err)
	}
	defer func() { _ = rows.Close() }()

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

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE expires_at < ?`, sqlrow.Nanos(now))
	if err != nil {
		return 0, domain.Unavailable("delete expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Unavailable("delete expired", err)
	}
	return int(n), nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.Unavailable("ping", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
