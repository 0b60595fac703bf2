// Package sweeper periodically removes expired snapshots from the store.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

// ErrSweepInProgress is returned by Sweep when another sweep is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// ExpiredDeleter removes snapshots whose expiry lies before now.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper runs DeleteExpired on a fixed interval. At most one sweep runs at a
// time whether it was started by the schedule or by a direct Sweep call.
type Sweeper struct {
	target    ExpiredDeleter
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	scheduler *gocron.Scheduler
	running   atomic.Bool
}

// New creates a Sweeper. It does nothing until Start is called.
func New(target ExpiredDeleter, clock clockwork.Clock, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		target:    target,
		clock:     clock,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Sweep removes expired snapshots once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.Sweeps.WithLabelValues("skipped").Inc()
		return 0, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	removed, err := s.target.DeleteExpired(ctx, s.clock.Now())
	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Sweeps.WithLabelValues("error").Inc()
		return 0, err
	}
	s.metrics.Sweeps.WithLabelValues("ok").Inc()
	s.metrics.SweptSnapshots.Add(float64(removed))
	return removed, nil
}

// Start schedules sweeps every interval, the first one interval from now.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	_, err := s.scheduler.Every(s.interval).SingletonMode().WaitForSchedule().Do(s.runScheduled)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("expiry sweeper started", "interval", s.interval)
	return nil
}

// Stop cancels future sweeps. A sweep already running completes.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// runScheduled never propagates failures; the next tick retries.
func (s *Sweeper) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	removed, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Debug("sweep skipped, previous sweep still running")
	case err != nil:
		s.logger.Error("expiry sweep failed", "error", err)
	case removed > 0:
		s.logger.Info("expired snapshots removed", "count", removed)
	default:
		s.logger.Debug("expiry sweep found nothing to remove")
	}
}
