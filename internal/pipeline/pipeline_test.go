package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
	"github.com/couchcryptid/weather-snapshot-cache/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	errs    []error
	calls   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.calls.Add(1)
	m.mu.Lock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()
	// block until context cancelled to simulate waiting for messages
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Snapshot, error) {
	if m.err != nil {
		return domain.Snapshot{}, m.err
	}
	return domain.Snapshot{ID: string(raw.Key)}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []string
	// failAfter, when set, makes the next call handle that many snapshots and
	// then fail. It is cleared after firing.
	failAfter *int
	calls     int
}

func (m *mockLoader) LoadBatch(_ context.Context, snaps []domain.Snapshot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	n := len(snaps)
	var err error
	if m.failAfter != nil {
		n = *m.failAfter
		m.failAfter = nil
		err = domain.Unavailable("put", errors.New("database is locked"))
	}
	for _, s := range snaps[:n] {
		m.loaded = append(m.loaded, s.ID)
	}
	return n, err
}

func (m *mockLoader) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loaded...)
}

type commitLog struct {
	mu      sync.Mutex
	offsets []int64
}

func (c *commitLog) event(key string, offset int64) domain.RawEvent {
	return domain.RawEvent{
		Key:    []byte(key),
		Topic:  "weather-snapshots",
		Offset: offset,
		Commit: func(context.Context) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.offsets = append(c.offsets, offset)
			return nil
		},
	}
}

func (c *commitLog) committed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runUntil runs the pipeline in the background until cond holds, then stops it.
func runUntil(t *testing.T, p *pipeline.Pipeline, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{
		commits.event("snap-1", 10),
		commits.event("snap-2", 11),
	}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{}, ldr, clockwork.NewRealClock(), discardLogger(), metrics, 50)
	require.Error(t, p.CheckReadiness(context.Background()))

	runUntil(t, p, func() bool { return len(commits.committed()) == 2 })

	assert.Equal(t, []string{"snap-1", "snap-2"}, ldr.ids())
	assert.Equal(t, []int64{10, 11}, commits.committed())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.ids())
	assert.Zero(t, ext.calls.Load())
}

func TestPipeline_Run_TransformErrorCommitsAndSkips(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{commits.event("bad", 3)}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, clockwork.NewRealClock(), discardLogger(), metrics, 10)

	runUntil(t, p, func() bool { return len(commits.committed()) == 1 })

	assert.Empty(t, ldr.ids())
	assert.Zero(t, ldr.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.IngestMessages.WithLabelValues("malformed")), 0)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureRetriesRemainder(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{
		commits.event("snap-1", 1),
		commits.event("snap-2", 2),
		commits.event("snap-3", 3),
	}}}
	one := 1
	ldr := &mockLoader{failAfter: &one}
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, &mockTransformer{}, ldr, clock, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	// Only the snapshot handled before the failure is committed.
	assert.Equal(t, []int64{1}, commits.committed())

	clock.Advance(200 * time.Millisecond)
	assert.Eventually(t, func() bool { return len(commits.committed()) == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"snap-1", "snap-2", "snap-3"}, ldr.ids())
	assert.Equal(t, []int64{1, 2, 3}, commits.committed())
	assert.Equal(t, 2, ldr.calls)
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{
		errs:    []error{errors.New("broker unreachable"), errors.New("broker unreachable")},
		batches: [][]domain.RawEvent{{commits.event("snap-1", 7)}},
	}
	ldr := &mockLoader{}
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, &mockTransformer{}, ldr, clock, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()

	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(200 * time.Millisecond)

	// The second wait doubles.
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(399 * time.Millisecond)
	assert.Equal(t, int64(2), ext.calls.Load())
	clock.Advance(time.Millisecond)

	assert.Eventually(t, func() bool { return len(commits.committed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"snap-1"}, ldr.ids())
}

func TestPipeline_Run_CommitErrorDoesNotStop(t *testing.T) {
	raw := domain.RawEvent{
		Key:    []byte("snap-1"),
		Commit: func(context.Context) error { return errors.New("rebalance in progress") },
	}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting(), 10)

	runUntil(t, p, func() bool { return len(ldr.ids()) == 1 })
	require.NoError(t, p.CheckReadiness(context.Background()))
}
