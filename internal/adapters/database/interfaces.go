package database

import (
	"context"

	"github.com/kevin07696/txrunner/internal/domain/ports"
)

// HealthChecker is implemented by pool adapters that can ping the database
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Ensure PostgreSQLAdapter implements the pool and health ports
var (
	_ ports.Pool    = (*PostgreSQLAdapter)(nil)
	_ ports.Conn    = (*pgxConn)(nil)
	_ HealthChecker = (*PostgreSQLAdapter)(nil)
)
