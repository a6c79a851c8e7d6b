// Package scheduler wires up the cron job that periodically enqueues scans
// for every board whose interval has elapsed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/queue"
	"github.com/TRA3H/hunter/internal/store"
)

// Enqueuer accepts scan tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) (string, error)
}

// Scheduler wraps robfig/cron and runs the due-board check.
type Scheduler struct {
	cron   *cron.Cron
	boards store.Boards
	tasks  Enqueuer
	spec   string // cron spec, e.g. "@every 1m"
	log    *zap.Logger
	now    func() time.Time
}

// New creates a Scheduler that checks boards on spec.
func New(boards store.Boards, tasks Enqueuer, spec string, log *zap.Logger) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	log = log.With(zap.String("component", "scheduler"))
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{log})),
		boards: boards,
		tasks:  tasks,
		spec:   spec,
		log:    log,
		now:    time.Now,
	}
}

// Start registers the check and starts cron. The check also runs once
// immediately so due boards are picked up without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.CheckDue(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("spec", s.spec))

	go s.CheckDue(ctx)

	return nil
}

// Stop shuts down cron and waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}

// CheckDue enqueues a scan for every enabled board that is due and returns
// how many it enqueued.
func (s *Scheduler) CheckDue(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	boards, err := s.boards.ListEnabledBoards(ctx)
	if err != nil {
		s.log.Error("list enabled boards failed", zap.Error(err))
		return 0
	}

	now := s.now()
	enqueued := 0
	for _, b := range boards {
		if !b.IsDue(now) {
			continue
		}
		id, err := s.tasks.Enqueue(ctx, queue.Task{Type: queue.TypeScan, Target: b.ID})
		if err != nil {
			s.log.Error("enqueue scan failed", zap.String("board_id", b.ID), zap.Error(err))
			continue
		}
		enqueued++
		s.log.Info("scan enqueued",
			zap.String("board_id", b.ID),
			zap.String("board", b.Name),
			zap.String("task_id", id),
		)
	}
	s.log.Debug("due check complete", zap.Int("boards", len(boards)), zap.Int("enqueued", enqueued))
	return enqueued
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
