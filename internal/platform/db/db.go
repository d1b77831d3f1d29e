// Package db opens the shared Postgres pool.
package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/anitrack/internal/platform/config"
)

// Open opens a pgxpool for dsn and pings it. Pool sizing comes from
// DB_MAX_CONNS, DB_MIN_CONNS and DB_MAX_CONN_IDLE.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func poolConfig(dsn string) (*pgxpool.Config, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	v := config.NewViper()
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_MAX_CONN_IDLE", 5*time.Minute)
	maxConns, minConns := v.GetInt32("DB_MAX_CONNS"), v.GetInt32("DB_MIN_CONNS")
	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns < 0 || minConns > maxConns {
		minConns = 1
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = v.GetDuration("DB_MAX_CONN_IDLE")
	cfg.HealthCheckPeriod = 30 * time.Second
	return cfg, nil
}

// ReadyFunc adapts a pool to the readiness probes.
func ReadyFunc(pool *pgxpool.Pool) func() error {
	return func() error {
		if pool == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}
