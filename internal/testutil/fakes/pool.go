// Package fakes provides an in-memory, fault-injecting Pool that records every
// call it receives, for testing code built on ports.Pool.
package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/domain/ports"
)

// Call log entries
const (
	CallAcquire = "acquire"
	CallRelease = "release"
)

// Pool is a fixed-size fake connection pool
type Pool struct {
	mu         sync.Mutex
	calls      []string
	failures   map[string]error
	acquireErr error
	sem        chan struct{}
	waitLimit  time.Duration
	noWait     bool
	acquired   int
	released   int
	violations int
	rows       map[string]*domain.Rows

	// BeforeExec, if set, runs before every statement on a leased connection
	BeforeExec func(ctx context.Context, stmt domain.Statement)
}

// NewPool creates a pool with size connections that waits without limit
func NewPool(size int) *Pool {
	p := &Pool{
		failures: make(map[string]error),
		rows:     make(map[string]*domain.Rows),
		sem:      make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	return p
}

// WithWaitLimit bounds how long Acquire waits. Zero means do not wait at all.
func (p *Pool) WithWaitLimit(d time.Duration) *Pool {
	p.waitLimit = d
	p.noWait = d == 0
	return p
}

// FailOn makes every statement whose SQL equals sql fail with err
func (p *Pool) FailOn(sql string, err error) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[sql] = err
	return p
}

// FailAcquire makes Acquire return err
func (p *Pool) FailAcquire(err error) *Pool {
	p.acquireErr = err
	return p
}

// WithRows makes Query for sql return rows
func (p *Pool) WithRows(sql string, rows *domain.Rows) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows[sql] = rows
	return p
}

// Calls returns a copy of the ordered call log
func (p *Pool) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Count returns how many times entry appears in the call log
func (p *Pool) Count(entry string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == entry {
			n++
		}
	}
	return n
}

// Acquired returns the number of successful acquisitions
func (p *Pool) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// Released returns the number of releases that returned a connection
func (p *Pool) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Violations returns the number of rejected second releases
func (p *Pool) Violations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.violations
}

// Idle returns the number of connections currently available
func (p *Pool) Idle() int {
	return len(p.sem)
}

func (p *Pool) record(entry string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, entry)
}

func (p *Pool) failure(sql string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[sql]
}

// Acquire implements ports.Pool
func (p *Pool) Acquire(ctx context.Context) (ports.Conn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}

	if p.noWait {
		select {
		case <-p.sem:
			return p.lease(), nil
		default:
			return nil, domain.PoolExhausted(fmt.Errorf("no idle connection"))
		}
	}

	waitCtx := ctx
	if p.waitLimit > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.waitLimit)
		defer cancel()
	}

	select {
	case <-p.sem:
		return p.lease(), nil
	case <-waitCtx.Done():
		if ctx.Err() == nil {
			return nil, domain.PoolExhausted(waitCtx.Err())
		}
		return nil, ctx.Err()
	}
}

func (p *Pool) lease() *Conn {
	p.mu.Lock()
	p.acquired++
	p.calls = append(p.calls, CallAcquire)
	p.mu.Unlock()
	return &Conn{pool: p}
}

// Exec implements ports.Pool in auto-commit mode
func (p *Pool) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	p.record("pool:exec:" + stmt.SQL)
	if err := p.failure(stmt.SQL); err != nil {
		return domain.Result{}, err
	}
	return domain.Result{Tag: stmt.SQL, RowsAffected: 1}, nil
}

// Query implements ports.Pool in auto-commit mode
func (p *Pool) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	p.record("pool:query:" + stmt.SQL)
	if err := p.failure(stmt.SQL); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rows, ok := p.rows[stmt.SQL]; ok {
		return rows, nil
	}
	return &domain.Rows{}, nil
}

// Conn is a connection leased from a fake Pool
type Conn struct {
	pool     *Pool
	mu       sync.Mutex
	released bool
}

// Exec implements ports.Conn
func (c *Conn) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	if c.pool.BeforeExec != nil {
		c.pool.BeforeExec(ctx, stmt)
	}
	c.pool.record("exec:" + stmt.SQL)
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	if err := c.pool.failure(stmt.SQL); err != nil {
		return domain.Result{}, err
	}
	return domain.Result{Tag: stmt.SQL, RowsAffected: 1}, nil
}

// Query implements ports.Conn
func (c *Conn) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	c.pool.record("query:" + stmt.SQL)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.pool.failure(stmt.SQL); err != nil {
		return nil, err
	}
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	if rows, ok := c.pool.rows[stmt.SQL]; ok {
		return rows, nil
	}
	return &domain.Rows{}, nil
}

// Release implements ports.Conn. A second release is counted as a violation
// and does not return the connection to the pool again.
func (c *Conn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pool.record(CallRelease)
	if c.released {
		c.pool.mu.Lock()
		c.pool.violations++
		c.pool.mu.Unlock()
		return
	}
	c.released = true

	c.pool.mu.Lock()
	c.pool.released++
	c.pool.mu.Unlock()
	c.pool.sem <- struct{}{}
}
