// Package dbpool opens the ports.Pool for the configured driver.
package dbpool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/adapters/database"
	"github.com/kevin07696/txrunner/internal/adapters/sqldb"
	"github.com/kevin07696/txrunner/internal/config"
	"github.com/kevin07696/txrunner/internal/domain/ports"
	"github.com/kevin07696/txrunner/pkg/resilience"
)

// Pool is a driver-backed ports.Pool with lifecycle hooks
type Pool struct {
	ports.Pool
	driver          string
	healthCheck     func(ctx context.Context) error
	close           func() error
	startMonitoring func(ctx context.Context, interval time.Duration)
}

// Driver returns the driver name the pool was opened with
func (p *Pool) Driver() string {
	return p.driver
}

// HealthCheck pings the database
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.healthCheck(ctx)
}

// Close closes every connection in the pool
func (p *Pool) Close() error {
	return p.close()
}

// StartMonitoring logs pool utilization every interval until ctx is done.
// It is a no-op for drivers without pool statistics or a zero interval.
func (p *Pool) StartMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 || p.startMonitoring == nil {
		return
	}
	p.startMonitoring(ctx, interval)
}

// Open opens the pool for cfg.Driver and verifies connectivity once
func Open(ctx context.Context, cfg *config.DatabaseConfig, dsn string, logger *zap.Logger) (*Pool, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		sqlCfg := sqldb.DefaultConfig(dsn)
		sqlCfg.MaxOpenConns = int(cfg.MaxConns)
		if cfg.MinConns > 0 {
			sqlCfg.MaxIdleConns = int(cfg.MinConns)
		}
		if sqlCfg.MaxIdleConns > sqlCfg.MaxOpenConns {
			sqlCfg.MaxIdleConns = sqlCfg.MaxOpenConns
		}
		sqlCfg.AcquireTimeout = cfg.AcquireTimeout
		sqlCfg.NoWait = cfg.NoWait
		sqlCfg.StatementTimeout = cfg.StatementTimeout

		adapter, err := sqldb.Open(ctx, sqlCfg, logger)
		if err != nil {
			return nil, err
		}
		return &Pool{
			Pool:        adapter,
			driver:      cfg.Driver,
			healthCheck: adapter.HealthCheck,
			close:       adapter.Close,
		}, nil

	case config.DriverPgx, "":
		pgCfg := database.DefaultPostgreSQLConfig(dsn)
		pgCfg.MaxConns = cfg.MaxConns
		pgCfg.MinConns = cfg.MinConns
		pgCfg.AcquireTimeout = cfg.AcquireTimeout
		pgCfg.NoWait = cfg.NoWait
		pgCfg.StatementTimeout = cfg.StatementTimeout

		adapter, err := database.NewPostgreSQLAdapter(ctx, pgCfg, logger)
		if err != nil {
			return nil, err
		}
		return &Pool{
			Pool:        adapter,
			driver:      config.DriverPgx,
			healthCheck: adapter.HealthCheck,
			close: func() error {
				adapter.Close()
				return nil
			},
			startMonitoring: adapter.StartPoolMonitoring,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Connect opens the pool, retrying with exponential backoff for
// cfg.ConnectAttempts while the database is unreachable.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, dsn string, logger *zap.Logger) (*Pool, error) {
	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var pool *Pool
	err := resilience.Retry(ctx, logger, "database connect", attempts, resilience.DefaultExponentialBackoff(),
		func(ctx context.Context) error {
			var err error
			pool, err = Open(ctx, cfg, dsn, logger)
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("driver", pool.Driver()),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Bool("no_wait", cfg.NoWait),
	)
	return pool, nil
}
