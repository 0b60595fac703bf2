package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

// SnapshotWriter stores a snapshot and returns the stored version.
type SnapshotWriter interface {
	Put(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error)
}

// Notifier publishes risk notifications.
type Notifier interface {
	Notify(ctx context.Context, notes []domain.RiskNotification) error
}

// StoreLoader implements BatchLoader on top of the snapshot store.
type StoreLoader struct {
	store       SnapshotWriter
	notifier    Notifier
	notifyLevel domain.RiskLevel
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewStoreLoader creates a loader. A nil notifier disables risk notifications.
func NewStoreLoader(store SnapshotWriter, notifier Notifier, notifyLevel domain.RiskLevel, logger *slog.Logger, metrics *observability.Metrics) *StoreLoader {
	return &StoreLoader{
		store:       store,
		notifier:    notifier,
		notifyLevel: notifyLevel,
		logger:      logger,
		metrics:     metrics,
	}
}

// LoadBatch stores snapshots in order. Invalid and conflicting snapshots are
// logged and skipped; any other failure stops the batch and is returned
// together with the number of snapshots handled so far. Notifications for
// stored snapshots are published even when the batch stops early.
func (l *StoreLoader) LoadBatch(ctx context.Context, snaps []domain.Snapshot) (int, error) {
	var notes []domain.RiskNotification
	defer func() { l.notify(ctx, notes) }()

	for i, snap := range snaps {
		saved, err := l.store.Put(ctx, snap)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrValidation):
			l.logger.Warn("invalid snapshot, skipping", "snapshot_id", snap.ID, "error", err)
			l.metrics.IngestMessages.WithLabelValues("invalid").Inc()
			continue
		case errors.Is(err, domain.ErrConflict):
			l.logger.Info("duplicate snapshot for cache key, skipping", "snapshot_id", snap.ID, "error", err)
			l.metrics.IngestMessages.WithLabelValues("conflict").Inc()
			continue
		default:
			return i, err
		}

		l.metrics.IngestMessages.WithLabelValues("stored").Inc()
		if saved.Version > 1 {
			l.logger.Debug("snapshot updated", "snapshot_id", saved.ID, "version", saved.Version)
		} else {
			l.logger.Debug("snapshot inserted", "snapshot_id", saved.ID, "cache_key", saved.CacheKey)
		}
		if l.notifier != nil && saved.HazardLevel(domain.HazardOverall).AtLeast(l.notifyLevel) {
			notes = append(notes, domain.NewRiskNotification(saved))
		}
	}
	return len(snaps), nil
}

// notify never fails the batch; snapshots are already stored.
func (l *StoreLoader) notify(ctx context.Context, notes []domain.RiskNotification) {
	if len(notes) == 0 {
		return
	}
	if err := l.notifier.Notify(ctx, notes); err != nil {
		l.logger.Warn("publish risk notifications failed", "count", len(notes), "error", err)
		return
	}
	l.metrics.RiskNotifications.Add(float64(len(notes)))
}
