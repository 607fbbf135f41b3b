package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger traffic is a handful of inserts per backup run plus key lookups,
// so the pool stays small and drops idle connections quickly.
const (
	ledgerMaxConns        = 4
	ledgerMaxConnIdleTime = 5 * time.Minute
	ledgerHealthCheck     = time.Minute
)

// NewCorePool connects to the Postgres database that holds the backup
// history ledger and API keys. The ledger lives outside the MySQL content
// database so a restore never rewrites its own audit trail.
func NewCorePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := ledgerPoolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create core db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping core db: %w", err)
	}

	return pool, nil
}

// ledgerPoolConfig parses databaseURL and applies the ledger defaults.
// Settings given as pool_* parameters in the URL win.
func ledgerPoolConfig(databaseURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse core db config: %w", err)
	}
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = ledgerMaxConns
	}
	if !strings.Contains(databaseURL, "pool_max_conn_idle_time") {
		cfg.MaxConnIdleTime = ledgerMaxConnIdleTime
	}
	if !strings.Contains(databaseURL, "pool_health_check_period") {
		cfg.HealthCheckPeriod = ledgerHealthCheck
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "periodical"
	}
	return cfg, nil
}
