package ports

import (
	"context"

	"github.com/kevin07696/txrunner/internal/domain"
)

// Querier issues statements. Implemented by both the pool (auto-commit) and
// a leased connection (inside a transaction).
type Querier interface {
	Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error)
	Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error)
}

// Conn is a connection leased exclusively from a Pool.
// Release must be called exactly once per acquisition.
type Conn interface {
	Querier
	Release()
}

// Pool manages reusable connections
type Pool interface {
	// Exec and Query on the pool run in auto-commit mode: acquire, execute,
	// release as one step.
	Querier

	// Acquire leases a dedicated connection. It may block until one is
	// available and fails with domain.ErrPoolExhausted when the pool's wait
	// policy is not met.
	Acquire(ctx context.Context) (Conn, error)
}
