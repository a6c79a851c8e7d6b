// Package db opens hunter's PostgreSQL pool and Redis client from their
// config sections. Both are pinged before they are handed out.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/config"
)

// NewPostgresPool opens the store's pool. MaxConns <= 0 keeps the pgx
// default; ConnectTimeout bounds the first ping.
func NewPostgresPool(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pctx, cancel := withTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres %s: ping: %w", pcfg.ConnConfig.Host, err)
	}

	log.Info("postgres connected",
		zap.String("host", pcfg.ConnConfig.Host),
		zap.String("database", pcfg.ConnConfig.Database),
		zap.Int32("max_conns", pcfg.MaxConns),
	)
	return pool, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
