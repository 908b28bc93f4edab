package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions tune the pgx pool. Durations are given as strings so they can
// come straight from the environment; empty values keep pgx defaults.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   string
	MaxConnIdleTime   string
	HealthCheckPeriod string
}

func NewPool(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns >= 0 {
		cfg.MinConns = opts.MinConns
	}

	if err := setDuration(&cfg.MaxConnLifetime, opts.MaxConnLifetime, "DB_POOL_MAX_CONN_LIFETIME"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.MaxConnIdleTime, opts.MaxConnIdleTime, "DB_POOL_MAX_CONN_IDLE_TIME"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.HealthCheckPeriod, opts.HealthCheckPeriod, "DB_POOL_HEALTH_CHECK_PERIOD"); err != nil {
		return nil, err
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

func setDuration(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}
