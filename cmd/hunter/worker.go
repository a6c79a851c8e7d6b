package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TRA3H/hunter/internal/application"
	"github.com/TRA3H/hunter/internal/discovery"
	"github.com/TRA3H/hunter/internal/httpserver"
	"github.com/TRA3H/hunter/internal/queue"
	"github.com/TRA3H/hunter/internal/scheduler"
	"github.com/TRA3H/hunter/internal/store"
	"github.com/TRA3H/hunter/internal/worker"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the task workers, the scan scheduler and the health/metrics server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				return runWorker(cmd.Context(), a)
			})
		},
	}
}

func runWorker(ctx context.Context, a *app) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return err
	}

	pool := worker.NewPool(a.queue, a.cfg.Worker, a.metrics, a.log)
	for typ, h := range taskHandlers(a.apps, a.discovery) {
		pool.Handle(typ, h)
	}
	sched := scheduler.New(a.store, a.queue, a.cfg.Scheduler.Spec, a.log)
	srv := httpserver.New(a.cfg.Metrics.Addr, version, map[string]httpserver.Check{
		"postgres": a.pool.Ping,
		"redis":    func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() },
	}, a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	a.log.Info("worker started",
		zap.String("version", version),
		zap.Int("concurrency", a.cfg.Worker.Concurrency),
		zap.String("renderer", a.cfg.Browser.Renderer),
	)
	return g.Wait()
}

// ─── Task handlers ───────────────────────────────────────────────────────────

// applications is the slice of application.Service the workers drive.
type applications interface {
	RunAutoApply(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	OpenBrowser(ctx context.Context, id string) error
}

type scans interface {
	ScanBoard(ctx context.Context, boardID string) (int, error)
}

func taskHandlers(apps applications, disc scans) map[queue.Type]worker.Handler {
	return map[queue.Type]worker.Handler{
		queue.TypeScan: func(ctx context.Context, t queue.Task) error {
			_, err := disc.ScanBoard(ctx, t.Target)
			return classify(err)
		},
		queue.TypeApply: func(ctx context.Context, t queue.Task) error {
			return classify(apps.RunAutoApply(ctx, t.Target))
		},
		queue.TypeResume: func(ctx context.Context, t queue.Task) error {
			return classify(apps.Resume(ctx, t.Target))
		},
		queue.TypeOpenBrowser: func(ctx context.Context, t queue.Task) error {
			return classify(apps.OpenBrowser(ctx, t.Target))
		},
	}
}

var permanentErrors = []error{
	application.ErrNotFound,
	application.ErrInvalidState,
	application.ErrJobMissing,
	application.ErrProfileMissing,
	application.ErrAutomationFailed,
	store.ErrStaleStatus,
	discovery.ErrBoardNotFound,
}

// classify marks errors a retry cannot fix: the record already carries the
// outcome, or the task's target is gone or in the wrong state.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return worker.Permanent(err)
		}
	}
	var appErr *application.ValidationError
	var boardErr *discovery.ValidationError
	if errors.As(err, &appErr) || errors.As(err, &boardErr) {
		return worker.Permanent(err)
	}
	return err
}
