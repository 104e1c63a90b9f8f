// Package shutdown coordinates graceful process shutdown.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type managerMetrics struct {
	duration          prometheus.Histogram
	componentDuration *prometheus.HistogramVec
	errors            *prometheus.CounterVec
}

func newManagerMetrics(reg prometheus.Registerer) *managerMetrics {
	factory := promauto.With(reg)
	return &managerMetrics{
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shutdown_duration_seconds",
			Help:    "Total time taken to shutdown gracefully",
			Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
		}),
		componentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "component_shutdown_duration_seconds",
			Help:    "Time taken to shutdown individual components",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
		}, []string{"component"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shutdown_errors_total",
			Help: "Total number of shutdown errors by component",
		}, []string{"component"}),
	}
}

// ShutdownFunc represents a function that shuts down a component
type ShutdownFunc func(context.Context) error

// Component represents a registered shutdown component
type Component struct {
	Name         string
	ShutdownFunc ShutdownFunc
}

// Manager coordinates graceful shutdown of all service components.
// Components shut down one at a time in REVERSE registration order (LIFO),
// so servers drain their in-flight transactions before the pool closes.
type Manager struct {
	logger     *zap.Logger
	components []Component
	mu         sync.Mutex
	timeout    time.Duration
	metrics    *managerMetrics
	once       sync.Once
	err        error
}

// NewManager creates a new shutdown manager. Metrics are registered on reg
// when it is non-nil.
func NewManager(logger *zap.Logger, timeout time.Duration, reg prometheus.Registerer) *Manager {
	sm := &Manager{
		logger:  logger,
		timeout: timeout,
	}
	if reg != nil {
		sm.metrics = newManagerMetrics(reg)
	}
	return sm
}

// Register adds a shutdown function. Register the database first and the
// readiness flag last:
//  1. Database pool (closed last)
//  2. Background workers
//  3. In-flight transaction tracker
//  4. HTTP and gRPC servers
//  5. Readiness (cleared first)
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.components = append(sm.components, Component{Name: name, ShutdownFunc: fn})

	sm.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("registration_order", len(sm.components)),
	)
}

// RegisterHTTPServer is a convenience method for registering HTTP servers
func (sm *Manager) RegisterHTTPServer(name string, server interface{ Shutdown(context.Context) error }) {
	sm.Register(name, server.Shutdown)
}

// RegisterCloser is a convenience method for registering components with Close() method
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(ctx context.Context) error {
		return closer.Close()
	})
}

// RegisterNoErr is a convenience method for shutdown functions that don't return errors
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *Manager) WaitForShutdown(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	sm.logger.Info("Received shutdown signal - initiating graceful shutdown",
		zap.Duration("timeout", sm.timeout),
	)

	return sm.Shutdown()
}

// Shutdown runs every registered component once. Later calls return the
// first result.
func (sm *Manager) Shutdown() error {
	sm.once.Do(func() {
		sm.err = sm.shutdown()
	})
	return sm.err
}

func (sm *Manager) shutdown() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	components := make([]Component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	sm.logger.Info("Starting graceful shutdown",
		zap.Int("component_count", len(components)),
		zap.Duration("timeout", sm.timeout),
	)

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		if err := sm.shutdownComponent(ctx, components[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", components[i].Name, err))
		}
	}

	elapsed := time.Since(start)
	if sm.metrics != nil {
		sm.metrics.duration.Observe(elapsed.Seconds())
	}

	if len(errs) > 0 {
		sm.logger.Error("Graceful shutdown completed with errors",
			zap.Int("error_count", len(errs)),
			zap.Duration("elapsed", elapsed),
		)
		return errors.Join(errs...)
	}

	sm.logger.Info("Graceful shutdown completed successfully", zap.Duration("elapsed", elapsed))
	return nil
}

func (sm *Manager) shutdownComponent(ctx context.Context, comp Component) error {
	start := time.Now()
	sm.logger.Info("Shutting down component", zap.String("component", comp.Name))

	err := comp.ShutdownFunc(ctx)
	elapsed := time.Since(start)

	if sm.metrics != nil {
		sm.metrics.componentDuration.WithLabelValues(comp.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		if sm.metrics != nil {
			sm.metrics.errors.WithLabelValues(comp.Name).Inc()
		}
		sm.logger.Error("Component shutdown failed",
			zap.String("component", comp.Name),
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
		return err
	}

	sm.logger.Info("Component shut down successfully",
		zap.String("component", comp.Name),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
