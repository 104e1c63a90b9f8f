package resilience

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retry calls fn up to attempts times, sleeping per backoff between failures.
// It stops early when ctx is done. The last error is returned wrapped.
//
// Retry is for process startup (dialing the database). Transactions are
// never retried.
func Retry(ctx context.Context, logger *zap.Logger, name string, attempts int, backoff BackoffStrategy, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}

		if attempt == attempts-1 {
			break
		}

		delay := backoff.NextDelay(attempt)
		logger.Warn("Operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
