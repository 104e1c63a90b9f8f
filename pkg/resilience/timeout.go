package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy, outermost first:
//
//	HTTP Handler (60s)
//	  Transaction (50s)
//	    Rollback (5s, detached from the caller)
//
// Each layer completes before its parent times out.
type TimeoutConfig struct {
	HTTPHandler time.Duration // Overall request timeout
	Transaction time.Duration // One unit of work, acquire through release
	Rollback    time.Duration // Rollback after failure or cancellation
	HealthCheck time.Duration // Database ping
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 60 * time.Second,
		Transaction: 50 * time.Second,
		Rollback:    5 * time.Second,
		HealthCheck: 2 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 5 * time.Second,
		Transaction: 4 * time.Second,
		Rollback:    1 * time.Second,
		HealthCheck: 500 * time.Millisecond,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// TransactionContext creates a context with timeout for one unit of work
func (tc *TimeoutConfig) TransactionContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Transaction)
}

// HealthCheckContext creates a context with timeout for a database ping
func (tc *TimeoutConfig) HealthCheckContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HealthCheck)
}

// Validate reports whether each layer fits inside its parent
func (tc *TimeoutConfig) Validate() bool {
	return tc.Transaction < tc.HTTPHandler && tc.Rollback < tc.Transaction
}
