package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into a snapshot ready to store.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Snapshot, error)
}

// BatchLoader writes snapshots to the destination. It returns how many
// snapshots were handled (stored or deliberately skipped) before an error, so
// a retry can resume after them.
type BatchLoader interface {
	LoadBatch(ctx context.Context, snaps []domain.Snapshot) (int, error)
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has loaded at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	start := p.clock.Now()
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}
	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(p.clock.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad transforms each message, loads the successes, and commits
// offsets. Messages that fail to transform are committed and dropped. Storage
// failures are retried with backoff until they succeed or ctx ends, so no
// offset is committed for a snapshot that was not handled.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration) (int, bool) {
	snaps := make([]domain.Snapshot, 0, len(rawBatch))
	successfulRaws := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		snap, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.IngestMessages.WithLabelValues("malformed").Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		snaps = append(snaps, snap)
		successfulRaws = append(successfulRaws, raw)
	}
	if len(snaps) == 0 {
		return 0, true
	}

	done := 0
	for done < len(snaps) {
		n, err := p.loader.LoadBatch(ctx, snaps[done:])
		p.commitOffsets(ctx, successfulRaws[done:done+n])
		done += n
		if err == nil {
			break
		}
		p.logger.Error("load batch failed", "error", err, "remaining", len(snaps)-done)
		if !p.backoffOrStop(ctx, backoff) {
			return done, false
		}
	}
	*backoff = initialBackoff
	return done, true
}

// backoffOrStop sleeps with the current backoff and doubles it, capped at
// maxBackoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !p.sleep(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff)
	return true
}

func (p *Pipeline) commitOffsets(ctx context.Context, raws []domain.RawEvent) {
	for _, raw := range raws {
		p.commitOffset(ctx, raw)
	}
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
