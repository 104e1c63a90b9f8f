// Package sqldb implements ports.Pool over database/sql with the lib/pq driver.
package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver
	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/domain/ports"
)

// DriverName is the database/sql driver registered by lib/pq
const DriverName = "postgres"

// Config contains configuration for the database/sql pool
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Acquire wait policy, same semantics as the pgx adapter
	AcquireTimeout time.Duration
	NoWait         bool
	NoWaitGrace    time.Duration

	// Per-statement timeout, 0 disables it
	StatementTimeout time.Duration
}

// DefaultNoWaitGrace bounds a NoWait acquire that passed the saturation
// check but lost the idle connection to a concurrent caller.
const DefaultNoWaitGrace = 100 * time.Millisecond

// DefaultConfig returns default configuration
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		AcquireTimeout:  5 * time.Second,
		NoWaitGrace:     DefaultNoWaitGrace,
	}
}

// SQLAdapter is a ports.Pool backed by *sql.DB
type SQLAdapter struct {
	db     *sql.DB
	logger *zap.Logger
	config *Config
}

// Open creates the pool and verifies connectivity
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*SQLAdapter, error) {
	db, err := sql.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database/sql adapter initialized",
		zap.String("driver", DriverName),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Duration("acquire_timeout", cfg.AcquireTimeout),
		zap.Bool("no_wait", cfg.NoWait),
		zap.Duration("statement_timeout", cfg.StatementTimeout),
	)

	return &SQLAdapter{db: db, logger: logger, config: cfg}, nil
}

// DB returns the underlying *sql.DB
func (a *SQLAdapter) DB() *sql.DB {
	return a.db
}

// Close closes the pool
func (a *SQLAdapter) Close() error {
	a.logger.Info("Closing database/sql connection pool")
	return a.db.Close()
}

// HealthCheck pings the database
func (a *SQLAdapter) HealthCheck(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Stats returns pool statistics
func (a *SQLAdapter) Stats() sql.DBStats {
	return a.db.Stats()
}

// Acquire leases a dedicated *sql.Conn according to the configured wait policy
func (a *SQLAdapter) Acquire(ctx context.Context) (ports.Conn, error) {
	if a.config.NoWait && saturated(a.db.Stats()) {
		return nil, domain.PoolExhausted(errors.New("all connections are leased")).
			WithDetail("max_conns", a.config.MaxOpenConns).
			WithDetail("no_wait", true)
	}

	limit := a.config.acquireWaitLimit()
	acquireCtx := ctx
	if limit > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	conn, err := a.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.PoolExhausted(err).
				WithDetail("max_conns", a.config.MaxOpenConns).
				WithDetail("acquire_timeout", limit.String()).
				WithDetail("no_wait", a.config.NoWait)
		}
		return nil, err
	}
	return &sqlConn{conn: conn, logger: a.logger, statementTimeout: a.config.StatementTimeout}, nil
}

// acquireWaitLimit is how long Acquire may queue on the pool, 0 for no limit
func (c *Config) acquireWaitLimit() time.Duration {
	if !c.NoWait {
		return c.AcquireTimeout
	}
	grace := c.NoWaitGrace
	if grace <= 0 {
		grace = DefaultNoWaitGrace
	}
	if c.AcquireTimeout > 0 && c.AcquireTimeout < grace {
		return c.AcquireTimeout
	}
	return grace
}

func saturated(stats sql.DBStats) bool {
	return stats.MaxOpenConnections > 0 &&
		stats.Idle == 0 &&
		stats.InUse >= stats.MaxOpenConnections
}

// Exec runs stmt in auto-commit mode
func (a *SQLAdapter) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	ctx, cancel := statementContext(ctx, a.config.StatementTimeout)
	defer cancel()

	res, err := a.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return domain.Result{}, err
	}
	return toResult(stmt, res), nil
}

// Query runs stmt in auto-commit mode and materializes its rows
func (a *SQLAdapter) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	ctx, cancel := statementContext(ctx, a.config.StatementTimeout)
	defer cancel()

	rows, err := a.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// sqlConn is a *sql.Conn leased from the pool. database/sql does not track
// transactions opened with plain statements, so the lease does: a connection
// released while still inside a transaction is discarded, not reused.
type sqlConn struct {
	conn             *sql.Conn
	logger           *zap.Logger
	statementTimeout time.Duration
	inTx             bool
	released         atomic.Bool
}

// statementContext applies the per-statement timeout
func statementContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, timeout)
}

func (c *sqlConn) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	ctx, cancel := statementContext(ctx, c.statementTimeout)
	defer cancel()

	res, err := c.conn.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return domain.Result{}, err
	}
	c.track(stmt)
	return toResult(stmt, res), nil
}

func (c *sqlConn) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	ctx, cancel := statementContext(ctx, c.statementTimeout)
	defer cancel()

	rows, err := c.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func (c *sqlConn) track(stmt domain.Statement) {
	switch controlKind(stmt.SQL) {
	case controlBegin:
		c.inTx = true
	case controlEnd:
		c.inTx = false
	}
}

func (c *sqlConn) Release() {
	if !c.released.CompareAndSwap(false, true) {
		c.logger.Error("Connection released twice", zap.Error(domain.ErrReleaseViolation))
		return
	}

	if c.inTx {
		c.logger.Warn("Discarding connection released inside a transaction")
		// Returning ErrBadConn from Raw marks the driver connection unusable
		_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		c.logger.Warn("Failed to return connection to pool", zap.Error(err))
	}
}

type control int

const (
	controlNone control = iota
	controlBegin
	controlEnd
)

func controlKind(sqlText string) control {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	switch {
	case strings.HasPrefix(upper, "BEGIN"), strings.HasPrefix(upper, "START TRANSACTION"):
		return controlBegin
	case strings.HasPrefix(upper, "COMMIT"), strings.HasPrefix(upper, "ROLLBACK"), strings.HasPrefix(upper, "END"):
		// ROLLBACK TO SAVEPOINT keeps the transaction open
		if strings.HasPrefix(upper, "ROLLBACK TO") {
			return controlNone
		}
		return controlEnd
	default:
		return controlNone
	}
}

func toResult(stmt domain.Statement, res sql.Result) domain.Result {
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	var tag string
	if fields := strings.Fields(stmt.SQL); len(fields) > 0 {
		tag = strings.ToUpper(fields[0])
	}
	return domain.Result{Tag: tag, RowsAffected: affected}
}

func collectRows(rows *sql.Rows) (*domain.Rows, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &domain.Rows{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Ensure SQLAdapter implements the pool port
var (
	_ ports.Pool = (*SQLAdapter)(nil)
	_ ports.Conn = (*sqlConn)(nil)
)
