package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/application"
	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/browser/pwbrowser"
	"github.com/TRA3H/hunter/internal/browser/static"
	"github.com/TRA3H/hunter/internal/config"
	"github.com/TRA3H/hunter/internal/db"
	"github.com/TRA3H/hunter/internal/discovery"
	"github.com/TRA3H/hunter/internal/events"
	"github.com/TRA3H/hunter/internal/logger"
	"github.com/TRA3H/hunter/internal/metrics"
	"github.com/TRA3H/hunter/internal/notify"
	"github.com/TRA3H/hunter/internal/queue"
	"github.com/TRA3H/hunter/internal/scraper"
	"github.com/TRA3H/hunter/internal/store/postgres"
)

// app holds every wired collaborator for one process.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	pool      *pgxpool.Pool
	rdb       *redis.Client
	store     *postgres.Store
	queue     *queue.Queue
	metrics   *metrics.Metrics
	apps      *application.Service
	discovery *discovery.Service
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Log.Debug = true
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	rdb, err := db.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		rdb:     rdb,
		store:   postgres.New(pool),
		queue:   queue.New(rdb, cfg.Worker.StreamPrefix, cfg.Worker.Group),
		metrics: metrics.New(nil),
	}

	notifier, err := a.notifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	pub := events.NewRedis(rdb, cfg.Redis.Channel, log)
	launcher := a.launcher()

	a.apps = application.NewService(a.store, launcher, pub, notifier, a.metrics, cfg.Browser, log)

	robots := scraper.NewRobotsPolicy(&http.Client{Timeout: cfg.Scan.RobotsTimeout}, cfg.Scan.RobotsUserAgent, log)
	coordinator := scraper.NewCoordinator(launcher, robots, scraper.RandomDelayer{}, cfg.Scan, log)
	a.discovery = discovery.NewService(a.store, coordinator, pub, notifier, a.metrics, log)

	return a, nil
}

func (a *app) notifier(ctx context.Context) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLog(a.log)}
	if a.cfg.Notify.EmailEnabled() {
		ses, err := notify.NewSES(ctx, a.cfg.Notify.SESRegion, a.cfg.Notify.From, a.cfg.Notify.To, a.log)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, ses)
		a.log.Info("email notifications enabled", zap.String("to", a.cfg.Notify.To))
	}
	return notifiers, nil
}

func (a *app) launcher() browser.Launcher {
	if a.cfg.Browser.Renderer == "static" {
		return &static.Launcher{Source: static.HTTPSource{
			Client:    &http.Client{Timeout: a.cfg.Browser.Timeout},
			UserAgent: a.cfg.Scan.RobotsUserAgent,
		}}
	}
	return pwbrowser.NewLauncher(a.cfg.Browser.Timeout, a.log)
}

// enqueueFor enqueues a task for an application and records its task id.
func (a *app) enqueueFor(ctx context.Context, typ queue.Type, appID string) (string, error) {
	id, err := a.queue.Enqueue(ctx, queue.Task{Type: typ, Target: appID})
	if err != nil {
		return "", err
	}
	if err := a.apps.SetTaskID(ctx, appID, id); err != nil {
		return id, fmt.Errorf("record task id: %w", err)
	}
	a.log.Info("task enqueued",
		zap.String("type", string(typ)),
		zap.String("application_id", appID),
		zap.String("task_id", id),
	)
	return id, nil
}

func (a *app) Close() {
	_ = a.rdb.Close()
	a.pool.Close()
	_ = a.log.Sync()
}
