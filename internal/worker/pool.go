// Package worker runs queued tasks on a fixed-size pool. Each worker reads
// one task at a time from the consumer group, so a slow browser task never
// holds messages another worker could run.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/config"
	"github.com/TRA3H/hunter/internal/metrics"
	"github.com/TRA3H/hunter/internal/queue"
)

// Task results, as recorded in metrics.
const (
	ResultOK      = "ok"
	ResultRetry   = "retry"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
	ResultUnknown = "unknown"
)

// Handler runs one task. Returning an error wrapped with Permanent skips
// the retry policy.
type Handler func(ctx context.Context, t queue.Task) error

// Pool dispatches tasks from a Queue to registered Handlers.
type Pool struct {
	queue    *queue.Queue
	cfg      config.WorkerConfig
	policies map[queue.Type]Policy
	handlers map[queue.Type]Handler
	metrics  *metrics.Metrics
	log      *zap.Logger
	name     string

	// sleep waits out a retry backoff; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPool returns a pool with the default retry policies. m may be nil.
func NewPool(q *queue.Queue, cfg config.WorkerConfig, m *metrics.Metrics, log *zap.Logger) *Pool {
	return &Pool{
		queue:    q,
		cfg:      cfg,
		policies: DefaultPolicies(),
		handlers: make(map[queue.Type]Handler),
		metrics:  m,
		log:      log.With(zap.String("component", "worker")),
		name:     "worker-" + uuid.NewString()[:8],
		sleep:    sleepCtx,
	}
}

// Handle registers h for tasks of type typ.
func (p *Pool) Handle(typ queue.Type, h Handler) { p.handlers[typ] = h }

// SetPolicy overrides the retry policy of typ.
func (p *Pool) SetPolicy(typ queue.Type, pol Policy) { p.policies[typ] = pol }

// Run starts cfg.Concurrency workers and blocks until ctx is done. Tasks in
// flight at shutdown get cfg.DrainTimeout to finish before their contexts
// are cancelled; unfinished tasks stay pending and are reclaimed later.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	n := p.cfg.Concurrency
	if n < 1 {
		n = 1
	}

	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, taskCtx, fmt.Sprintf("%s-%d", p.name, i))
		}()
	}
	p.log.Info("worker pool started", zap.Int("concurrency", n), zap.String("stream", p.queue.Stream()))

	<-ctx.Done()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.cfg.DrainTimeout):
		p.log.Warn("drain timeout reached, cancelling running tasks", zap.Duration("drain_timeout", p.cfg.DrainTimeout))
		cancelTasks()
		<-done
	}
	p.log.Info("worker pool stopped")
	return nil
}

// loop reads and runs tasks until ctx is done. taskCtx outlives ctx by the
// drain period.
func (p *Pool) loop(ctx, taskCtx context.Context, consumer string) {
	log := p.log.With(zap.String("consumer", consumer))
	for ctx.Err() == nil {
		tasks, err := p.next(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("read tasks failed", zap.Error(err))
			if p.sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}
		for _, t := range tasks {
			p.process(taskCtx, consumer, t)
		}
	}
}

// next prefers tasks abandoned by dead consumers over new ones.
func (p *Pool) next(ctx context.Context, consumer string) ([]queue.Task, error) {
	minIdle := p.cfg.HardLimit + p.cfg.DrainTimeout
	if minIdle > 0 {
		claimed, err := p.queue.Reclaim(ctx, consumer, minIdle, 1)
		if err != nil {
			p.log.Warn("reclaim failed", zap.Error(err))
		} else if len(claimed) > 0 {
			return claimed, nil
		}
	}
	return p.queue.Read(ctx, consumer, 1, p.cfg.BlockTimeout)
}

// process runs one task under its time limits, applies the retry policy
// and acks it.
func (p *Pool) process(ctx context.Context, consumer string, t queue.Task) string {
	log := p.log.With(
		zap.String("task_id", t.ID),
		zap.String("type", string(t.Type)),
		zap.String("target", t.Target),
		zap.Int("attempt", t.Attempt),
	)
	start := time.Now()

	result := p.run(ctx, consumer, t, log)
	took := time.Since(start)
	p.metrics.TaskFinished(string(t.Type), result, took)

	if ctx.Err() != nil && result != ResultOK {
		// Shutdown interrupted the task; leave it pending for reclaim.
		log.Warn("task interrupted by shutdown")
		return result
	}
	if err := p.queue.Ack(context.WithoutCancel(ctx), t); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
	log.Info("task finished", zap.String("result", result), zap.Duration("took", took))
	return result
}

func (p *Pool) run(ctx context.Context, consumer string, t queue.Task, log *zap.Logger) string {
	h, ok := p.handlers[t.Type]
	if !ok {
		log.Error("no handler for task type")
		return ResultUnknown
	}
	pol := p.policies[t.Type]

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if !pol.Unbounded && p.cfg.HardLimit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.HardLimit)
	}
	defer cancel()
	if pol.Unbounded {
		stop := p.keepAlive(ctx, consumer, t, log)
		defer stop()
	}

	if p.cfg.SoftLimit > 0 {
		soft := time.AfterFunc(p.cfg.SoftLimit, func() {
			log.Warn("task exceeded soft time limit", zap.Duration("soft_limit", p.cfg.SoftLimit))
		})
		defer soft.Stop()
	}

	p.metrics.Busy(1)
	err := h(runCtx, t)
	p.metrics.Busy(-1)

	switch {
	case err == nil:
		return ResultOK
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		log.Error("task exceeded hard time limit", zap.Duration("hard_limit", p.cfg.HardLimit), zap.Error(err))
		return ResultTimeout
	case IsPermanent(err):
		log.Error("task failed", zap.Error(err))
		return ResultFailed
	case ctx.Err() != nil:
		return ResultFailed
	case t.Attempt >= pol.MaxRetries:
		log.Error("task failed, retries exhausted", zap.Int("max_retries", pol.MaxRetries), zap.Error(err))
		return ResultFailed
	}

	log.Warn("task failed, retrying", zap.Duration("backoff", pol.Backoff), zap.Error(err))
	if err := p.sleep(ctx, pol.Backoff); err != nil {
		return ResultFailed
	}
	if err := p.queue.Retry(ctx, t); err != nil {
		log.Error("re-enqueue failed", zap.Error(err))
		return ResultFailed
	}
	return ResultRetry
}

// keepAlive touches t at half the reclaim threshold until stop is called.
func (p *Pool) keepAlive(ctx context.Context, consumer string, t queue.Task, log *zap.Logger) (stop func()) {
	every := (p.cfg.HardLimit + p.cfg.DrainTimeout) / 2
	if every <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.Touch(ctx, consumer, t); err != nil && ctx.Err() == nil {
					log.Warn("keep-alive failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
