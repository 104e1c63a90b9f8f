package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/domain/ports"
)

// DefaultRollbackTimeout bounds the rollback issued after a failure. The
// rollback runs detached from the caller's cancellation.
const DefaultRollbackTimeout = 5 * time.Second

// errQuerierClosed is returned when a callback keeps using its querier after
// the unit of work has finished.
var errQuerierClosed = errors.New("querier used after transaction finished")

// Outcome describes how one unit of work ended
type Outcome struct {
	ID       uuid.UUID
	State    domain.State // terminal state before release: committed, rolled_back or failed
	Executed int          // statements that succeeded before commit or the first failure
	Duration time.Duration
	Trace    []domain.State
	Released bool
}

func (o *Outcome) transition(s domain.State) {
	o.Trace = append(o.Trace, s)
	if s == domain.StateReleased {
		o.Released = true
		return
	}
	o.State = s
}

// Option configures a Runner
type Option func(*Runner)

// WithTxOptions sets the default BEGIN options for Run and RunFunc
func WithTxOptions(opts domain.TxOptions) Option {
	return func(r *Runner) { r.txOpts = opts }
}

// WithRollbackTimeout bounds how long a rollback may take
func WithRollbackTimeout(d time.Duration) Option {
	return func(r *Runner) { r.rollbackTimeout = d }
}

// WithRollbackHandler registers a side channel for rollback failures.
// The returned error of the unit of work is never replaced by them.
func WithRollbackHandler(fn func(*domain.RollbackError)) Option {
	return func(r *Runner) { r.onRollbackError = fn }
}

// WithMetrics records transaction metrics
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner executes units of work atomically on one leased connection and
// returns that connection to the pool exactly once.
type Runner struct {
	pool            ports.Pool
	logger          *zap.Logger
	txOpts          domain.TxOptions
	rollbackTimeout time.Duration
	onRollbackError func(*domain.RollbackError)
	metrics         *Metrics
}

// NewRunner creates a Runner over the given pool
func NewRunner(pool ports.Pool, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		pool:            pool,
		logger:          logger,
		rollbackTimeout: DefaultRollbackTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exec runs a single statement in auto-commit mode, bypassing the transaction bracket
func (r *Runner) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	res, err := r.pool.Exec(ctx, stmt)
	if err != nil {
		r.metrics.statement(err)
		return domain.Result{}, &domain.StatementError{
			Phase:     domain.PhaseExecute,
			Index:     0,
			Statement: stmt,
			SQLState:  domain.SQLStateOf(err),
			Err:       err,
		}
	}
	r.metrics.statement(nil)
	return res, nil
}

// Query runs a single row-returning statement in auto-commit mode
func (r *Runner) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	rows, err := r.pool.Query(ctx, stmt)
	if err != nil {
		r.metrics.statement(err)
		return nil, &domain.StatementError{
			Phase:     domain.PhaseExecute,
			Index:     0,
			Statement: stmt,
			SQLState:  domain.SQLStateOf(err),
			Err:       err,
		}
	}
	r.metrics.statement(nil)
	return rows, nil
}

// Run executes stmts in order inside one transaction.
// The first failing statement aborts the rest and rolls the transaction back.
func (r *Runner) Run(ctx context.Context, stmts []domain.Statement) (*Outcome, error) {
	return r.RunTx(ctx, r.txOpts, stmts)
}

// RunTx is Run with explicit BEGIN options
func (r *Runner) RunTx(ctx context.Context, txOpts domain.TxOptions, stmts []domain.Statement) (*Outcome, error) {
	return r.execute(ctx, txOpts, func(ctx context.Context, q ports.Querier) (int, error) {
		return r.execSequence(ctx, q, stmts)
	})
}

// RunFunc executes fn inside one transaction. A non-nil error from fn rolls
// the transaction back and is returned wrapped in a *domain.StatementError.
// A panic in fn rolls back and releases before the panic propagates.
func (r *Runner) RunFunc(ctx context.Context, fn func(ctx context.Context, q ports.Querier) error) (*Outcome, error) {
	return r.RunFuncTx(ctx, r.txOpts, fn)
}

// RunFuncTx is RunFunc with explicit BEGIN options
func (r *Runner) RunFuncTx(ctx context.Context, txOpts domain.TxOptions, fn func(ctx context.Context, q ports.Querier) error) (*Outcome, error) {
	return r.execute(ctx, txOpts, func(ctx context.Context, q ports.Querier) (int, error) {
		cq := &scopedQuerier{conn: q, metrics: r.metrics}
		defer cq.closed.Store(true)

		if err := fn(ctx, cq); err != nil {
			var stmtErr *domain.StatementError
			if errors.As(err, &stmtErr) {
				return int(cq.executed.Load()), stmtErr
			}
			return int(cq.executed.Load()), &domain.StatementError{
				Phase:    domain.PhaseCallback,
				Index:    -1,
				SQLState: domain.SQLStateOf(err),
				Err:      err,
			}
		}
		return int(cq.executed.Load()), nil
	})
}

// execSequence is a short-circuiting fold over stmts: it returns either
// len(stmts) and nil, or the index of the first failure and its error.
func (r *Runner) execSequence(ctx context.Context, q ports.Querier, stmts []domain.Statement) (int, error) {
	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return i, &domain.StatementError{Phase: domain.PhaseExecute, Index: i, Statement: stmt, Err: err}
		}
		if _, err := q.Exec(ctx, stmt); err != nil {
			r.metrics.statement(err)
			return i, &domain.StatementError{
				Phase:     domain.PhaseExecute,
				Index:     i,
				Statement: stmt,
				SQLState:  domain.SQLStateOf(err),
				Err:       err,
			}
		}
		r.metrics.statement(nil)
	}
	return len(stmts), nil
}

type workFunc func(ctx context.Context, q ports.Querier) (int, error)

func (r *Runner) execute(ctx context.Context, txOpts domain.TxOptions, work workFunc) (out *Outcome, err error) {
	out = &Outcome{ID: uuid.New(), State: domain.StateIdle}
	logger := r.logger.With(zap.String("tx_id", out.ID.String()))
	start := time.Now()

	r.metrics.begin()
	defer func() {
		out.Duration = time.Since(start)
		r.metrics.finish(out, err)
	}()

	out.transition(domain.StateAcquiring)
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		out.transition(domain.StateFailed)
		if domain.IsPoolExhausted(err) {
			fields := []zap.Field{zap.String("phase", string(domain.PhaseAcquire)), zap.Error(err)}
			var domErr *domain.DomainError
			if errors.As(err, &domErr) && len(domErr.Details) > 0 {
				fields = append(fields, zap.Any("details", domErr.Details))
			}
			logger.Warn("Connection pool exhausted", fields...)
			return out, err
		}
		logger.Error("Failed to acquire connection",
			zap.String("phase", string(domain.PhaseAcquire)),
			zap.Error(err),
		)
		return out, fmt.Errorf("failed to acquire connection: %w", err)
	}

	// Registered first so it runs last, after commit, rollback or panic recovery.
	defer func() {
		conn.Release()
		out.transition(domain.StateReleased)
		logger.Debug("Connection released",
			zap.String("state", out.State.String()),
			zap.Int("executed", out.Executed),
		)
	}()

	begin := txOpts.BeginStatement()
	if _, err := conn.Exec(ctx, begin); err != nil {
		out.transition(domain.StateFailed)
		logger.Error("Failed to begin transaction", zap.Error(err))
		return out, &domain.StatementError{
			Phase:     domain.PhaseBegin,
			Index:     -1,
			Statement: begin,
			SQLState:  domain.SQLStateOf(err),
			Err:       err,
		}
	}
	out.transition(domain.StateBegan)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Panic inside transaction, rolling back", zap.Any("panic", p))
			r.rollback(ctx, conn, out, logger, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	out.transition(domain.StateExecuting)
	executed, workErr := work(ctx, conn)
	out.Executed = executed
	if workErr != nil {
		stmtErr := asStatementError(workErr)
		logger.Warn("Transaction failed, rolling back",
			zap.String("phase", string(stmtErr.Phase)),
			zap.Int("index", stmtErr.Index),
			zap.Error(stmtErr.Err),
		)
		stmtErr.Rollback = r.rollback(ctx, conn, out, logger, stmtErr)
		return out, stmtErr
	}

	out.transition(domain.StateCommitting)
	if _, err := conn.Exec(ctx, domain.StmtCommit); err != nil {
		stmtErr := &domain.StatementError{
			Phase:     domain.PhaseCommit,
			Index:     -1,
			Statement: domain.StmtCommit,
			SQLState:  domain.SQLStateOf(err),
			Err:       err,
		}
		logger.Warn("Commit failed, rolling back", zap.Error(err))
		stmtErr.Rollback = r.rollback(ctx, conn, out, logger, stmtErr)
		return out, stmtErr
	}
	out.transition(domain.StateCommitted)

	logger.Debug("Transaction committed",
		zap.Int("executed", executed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// rollback issues ROLLBACK on a context that survives caller cancellation.
// A rollback failure is logged and reported on the side channel, then returned
// so the caller can attach it to the original error.
func (r *Runner) rollback(ctx context.Context, conn ports.Conn, out *Outcome, logger *zap.Logger, cause error) *domain.RollbackError {
	out.transition(domain.StateRollingBack)

	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.rollbackTimeout)
	defer cancel()

	var rbErr *domain.RollbackError
	if _, err := conn.Exec(rbCtx, domain.StmtRollback); err != nil {
		rbErr = &domain.RollbackError{Cause: cause, Err: err}
		logger.Error("Failed to rollback transaction",
			zap.String("phase", string(domain.PhaseRollback)),
			zap.Error(err),
			zap.NamedError("original_error", cause),
		)
		r.metrics.rollbackFailed()
		if r.onRollbackError != nil {
			r.onRollbackError(rbErr)
		}
	}

	out.transition(domain.StateRolledBack)
	return rbErr
}

func asStatementError(err error) *domain.StatementError {
	var stmtErr *domain.StatementError
	if errors.As(err, &stmtErr) {
		return stmtErr
	}
	return &domain.StatementError{Phase: domain.PhaseCallback, Index: -1, Err: err}
}

// scopedQuerier is handed to RunFunc callbacks. It counts successful
// statements and refuses use after the unit of work has finished.
type scopedQuerier struct {
	conn     ports.Querier
	metrics  *Metrics
	executed atomic.Int64
	closed   atomic.Bool
}

func (q *scopedQuerier) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	if q.closed.Load() {
		return domain.Result{}, errQuerierClosed
	}
	res, err := q.conn.Exec(ctx, stmt)
	q.metrics.statement(err)
	if err == nil {
		q.executed.Add(1)
	}
	return res, err
}

func (q *scopedQuerier) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	if q.closed.Load() {
		return nil, errQuerierClosed
	}
	rows, err := q.conn.Query(ctx, stmt)
	q.metrics.statement(err)
	if err == nil {
		q.executed.Add(1)
	}
	return rows, err
}
