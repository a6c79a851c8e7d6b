package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/config"
	"github.com/TRA3H/hunter/internal/metrics"
	"github.com/TRA3H/hunter/internal/queue"
	"github.com/TRA3H/hunter/internal/worker"
)

type harness struct {
	rdb     *redis.Client
	queue   *queue.Queue
	pool    *worker.Pool
	metrics *metrics.Metrics
	sleeps  []time.Duration
}

func newHarness(t *testing.T, cfg config.WorkerConfig) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{rdb: rdb, queue: queue.New(rdb, "test", "workers")}
	require.NoError(t, h.queue.EnsureGroup(context.Background()))
	h.metrics = metrics.New(prometheus.NewRegistry())
	h.pool = worker.NewPool(h.queue, cfg, h.metrics, zap.NewNop())
	h.pool.SetSleep(func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	})
	return h
}

// next enqueues a task and reads it back as a consumer would.
func (h *harness) next(t *testing.T, task queue.Task) queue.Task {
	t.Helper()
	ctx := context.Background()
	if task.Type != "" {
		_, err := h.queue.Enqueue(ctx, task)
		require.NoError(t, err)
	}
	tasks, err := h.queue.Read(ctx, "c1", 1, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return tasks[0]
}

func (h *harness) pending(t *testing.T) int64 {
	t.Helper()
	p, err := h.rdb.XPending(context.Background(), h.queue.Stream(), h.queue.Group()).Result()
	require.NoError(t, err)
	return p.Count
}

func (h *harness) tasks(typ, result string) float64 {
	return testutil.ToFloat64(h.metrics.TasksTotal.WithLabelValues(typ, result))
}

func TestProcess_Success(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{HardLimit: time.Minute})
	var got queue.Task
	h.pool.Handle(queue.TypeApply, func(_ context.Context, task queue.Task) error {
		got = task
		return nil
	})

	task := h.next(t, queue.Task{Type: queue.TypeApply, Target: "app-1"})
	assert.Equal(t, worker.ResultOK, h.pool.Process(context.Background(), "c1", task))
	assert.Equal(t, "app-1", got.Target)
	assert.Zero(t, h.pending(t))
	assert.Equal(t, 1.0, h.tasks("apply", worker.ResultOK))
	assert.Zero(t, testutil.ToFloat64(h.metrics.WorkersBusy))
}

func TestProcess_RetryThenExhaust(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{HardLimit: time.Minute})
	var calls atomic.Int32
	h.pool.Handle(queue.TypeApply, func(context.Context, queue.Task) error {
		calls.Add(1)
		return errors.New("redis hiccup")
	})
	ctx := context.Background()

	first := h.next(t, queue.Task{Type: queue.TypeApply, Target: "app-1"})
	assert.Equal(t, worker.ResultRetry, h.pool.Process(ctx, "c1", first))
	assert.Equal(t, []time.Duration{30 * time.Second}, h.sleeps)

	second := h.next(t, queue.Task{})
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Attempt)
	assert.Equal(t, worker.ResultFailed, h.pool.Process(ctx, "c1", second))

	assert.EqualValues(t, 2, calls.Load())
	assert.Len(t, h.sleeps, 1)
	assert.Zero(t, h.pending(t))
	depth, _ := h.queue.Depth(ctx)
	assert.EqualValues(t, 2, depth)
}

func TestProcess_ScanRetriesTwice(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{})
	h.pool.Handle(queue.TypeScan, func(context.Context, queue.Task) error { return errors.New("timeout") })
	ctx := context.Background()

	task := h.next(t, queue.Task{Type: queue.TypeScan, Target: "board-1"})
	results := []string{h.pool.Process(ctx, "c1", task)}
	for range 2 {
		task = h.next(t, queue.Task{})
		results = append(results, h.pool.Process(ctx, "c1", task))
	}
	assert.Equal(t, []string{worker.ResultRetry, worker.ResultRetry, worker.ResultFailed}, results)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, h.sleeps)
}

func TestProcess_PermanentErrorIsNotRetried(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{})
	h.pool.Handle(queue.TypeResume, func(context.Context, queue.Task) error {
		return worker.Permanent(errors.New("invalid state"))
	})

	task := h.next(t, queue.Task{Type: queue.TypeResume, Target: "app-1"})
	assert.Equal(t, worker.ResultFailed, h.pool.Process(context.Background(), "c1", task))
	assert.Empty(t, h.sleeps)
	depth, _ := h.queue.Depth(context.Background())
	assert.EqualValues(t, 1, depth)
}

func TestProcess_HardLimit(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{SoftLimit: 10 * time.Millisecond, HardLimit: 50 * time.Millisecond})
	h.pool.Handle(queue.TypeApply, func(ctx context.Context, _ queue.Task) error {
		<-ctx.Done()
		return ctx.Err()
	})

	task := h.next(t, queue.Task{Type: queue.TypeApply, Target: "app-1"})
	assert.Equal(t, worker.ResultTimeout, h.pool.Process(context.Background(), "c1", task))
	assert.Empty(t, h.sleeps)
	assert.Zero(t, h.pending(t))
	assert.Equal(t, 1.0, h.tasks("apply", worker.ResultTimeout))
}

func TestProcess_OpenBrowserHasNoDeadline(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{HardLimit: 50 * time.Millisecond})
	var hasDeadline bool
	h.pool.Handle(queue.TypeOpenBrowser, func(ctx context.Context, _ queue.Task) error {
		_, hasDeadline = ctx.Deadline()
		return errors.New("closed")
	})

	task := h.next(t, queue.Task{Type: queue.TypeOpenBrowser, Target: "app-1"})
	assert.Equal(t, worker.ResultFailed, h.pool.Process(context.Background(), "c1", task))
	assert.False(t, hasDeadline)
	assert.Empty(t, h.sleeps)
}

func TestProcess_UnknownHandlerIsDropped(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{})
	task := h.next(t, queue.Task{Type: queue.TypeScan, Target: "board-1"})
	assert.Equal(t, worker.ResultUnknown, h.pool.Process(context.Background(), "c1", task))
	assert.Zero(t, h.pending(t))
}

func TestProcess_ShutdownLeavesTaskPending(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	h.pool.Handle(queue.TypeApply, func(context.Context, queue.Task) error {
		cancel()
		return context.Canceled
	})

	task := h.next(t, queue.Task{Type: queue.TypeApply, Target: "app-1"})
	assert.Equal(t, worker.ResultFailed, h.pool.Process(ctx, "c1", task))
	assert.EqualValues(t, 1, h.pending(t))
}

func TestPool_Run(t *testing.T) {
	h := newHarness(t, config.WorkerConfig{
		Concurrency:  2,
		BlockTimeout: 20 * time.Millisecond,
		DrainTimeout: time.Second,
	})
	done := make(chan string, 3)
	h.pool.Handle(queue.TypeScan, func(_ context.Context, task queue.Task) error {
		done <- task.Target
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, board := range []string{"a", "b", "c"} {
		_, err := h.queue.Enqueue(ctx, queue.Task{Type: queue.TypeScan, Target: board})
		require.NoError(t, err)
	}

	errc := make(chan error, 1)
	go func() { errc <- h.pool.Run(ctx) }()

	seen := map[string]bool{}
	for range 3 {
		select {
		case b := <-done:
			seen[b] = true
		case <-time.After(5 * time.Second):
			t.Fatal("tasks were not processed")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
	assert.Zero(t, h.pending(t))
}

func TestPermanent(t *testing.T) {
	base := errors.New("boom")
	err := worker.Permanent(base)
	assert.True(t, worker.IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, worker.IsPermanent(base))
	assert.NoError(t, worker.Permanent(nil))
}
