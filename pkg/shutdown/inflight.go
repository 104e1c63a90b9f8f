package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight work so shutdown waits for it. Once
// shutdown starts, new work is refused.
type InFlightTracker struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing bool
	logger  *zap.Logger
	name    string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		logger: logger,
		name:   name,
	}
}

// Add registers one unit of work. Returns false once shutdown has started.
func (ift *InFlightTracker) Add() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()

	if ift.closing {
		return false
	}
	ift.wg.Add(1)
	return true
}

// Done marks one unit of work complete
func (ift *InFlightTracker) Done() {
	ift.wg.Done()
}

// IsShuttingDown returns true if shutdown has been initiated
func (ift *InFlightTracker) IsShuttingDown() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()
	return ift.closing
}

// Shutdown refuses new work and waits for in-flight work or ctx
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	ift.mu.Lock()
	ift.closing = true
	ift.mu.Unlock()

	ift.logger.Info("Waiting for in-flight work to complete", zap.String("tracker", ift.name))

	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ift.logger.Info("All in-flight work completed", zap.String("tracker", ift.name))
		return nil
	case <-ctx.Done():
		ift.logger.Warn("Shutdown timeout - some work may be incomplete", zap.String("tracker", ift.name))
		return ctx.Err()
	}
}

// PeriodicWorker runs a function on an interval until stopped
type PeriodicWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		name:     name,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs work immediately and then on every tick. work should honor ctx.
func (pw *PeriodicWorker) Start(work func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	pw.cancel = cancel

	go func() {
		defer close(pw.done)
		pw.logger.Info("Background worker started", zap.String("worker", pw.name))

		ticker := time.NewTicker(pw.interval)
		defer ticker.Stop()

		work(ctx)
		for {
			select {
			case <-ctx.Done():
				pw.logger.Info("Background worker stopped", zap.String("worker", pw.name))
				return
			case <-ticker.C:
				work(ctx)
			}
		}
	}()
}

// Shutdown cancels the worker and waits for it or ctx
func (pw *PeriodicWorker) Shutdown(ctx context.Context) error {
	pw.stopOnce.Do(func() {
		if pw.cancel != nil {
			pw.cancel()
		} else {
			close(pw.done)
		}
	})

	select {
	case <-pw.done:
		return nil
	case <-ctx.Done():
		pw.logger.Warn("Background worker shutdown timeout", zap.String("worker", pw.name))
		return ctx.Err()
	}
}
