package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/txrunner/internal/adapters/dbpool"
	"github.com/kevin07696/txrunner/internal/adapters/secrets"
	"github.com/kevin07696/txrunner/internal/config"
	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/handlers/statements"
	"github.com/kevin07696/txrunner/internal/middleware"
	"github.com/kevin07696/txrunner/internal/services/transaction"
	pkgmiddleware "github.com/kevin07696/txrunner/pkg/middleware"
	"github.com/kevin07696/txrunner/pkg/observability"
	"github.com/kevin07696/txrunner/pkg/resilience"
	"github.com/kevin07696/txrunner/pkg/shutdown"
)

const (
	serviceName         = "txrunner"
	healthProbeInterval = 10 * time.Second
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting transaction runner service",
		zap.String("version", "0.1.0"),
		zap.String("driver", cfg.Database.Driver),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Servers stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	timeouts := resilience.DefaultTimeoutConfig()
	if !timeouts.Validate() {
		return errors.New("timeout hierarchy is inconsistent")
	}

	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout, registry)

	// Database
	secretManager, err := secrets.NewSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize secret backend: %w", err)
	}
	password, err := secrets.ResolveDatabasePassword(ctx, cfg, secretManager, logger)
	if err != nil {
		return err
	}

	db, err := dbpool.Connect(ctx, &cfg.Database, cfg.Database.ConnectionString(password), logger)
	if err != nil {
		return err
	}
	sm.RegisterCloser("database-pool", db)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	db.StartMonitoring(monitorCtx, cfg.Database.MonitorInterval)
	sm.RegisterNoErr("pool-monitor", stopMonitor)

	// Transaction runner
	runner := transaction.NewRunner(db, logger,
		transaction.WithMetrics(transaction.NewMetrics(registry)),
		transaction.WithRollbackTimeout(timeouts.Rollback),
		transaction.WithRollbackHandler(func(rbErr *domain.RollbackError) {
			logger.Warn("Connection may be unusable after failed rollback",
				zap.Error(rbErr.Err),
				zap.NamedError("original_error", rbErr.Cause),
			)
		}),
	)

	// Health
	healthChecker := observability.NewHealthChecker(db, timeouts.HealthCheck)
	healthService := observability.NewDatabaseHealthService(serviceName, healthChecker, logger)

	healthWorker := shutdown.NewPeriodicWorker("grpc-health-probe", healthProbeInterval, logger)
	healthWorker.Start(healthService.Probe)
	sm.Register("grpc-health-probe", healthWorker.Shutdown)

	requestMetrics := observability.NewRequestMetrics(registry)

	metricsServer := observability.StartMetricsServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		registry, healthChecker, logger,
	)
	sm.RegisterHTTPServer("metrics-server", metricsServer)

	// gRPC health
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			requestMetrics.UnaryServerInterceptor(),
			pkgmiddleware.UnaryTimeoutInterceptor(timeouts, logger),
			loggingInterceptor(logger),
			recoveryInterceptor(logger),
		),
	)
	healthpb.RegisterHealthServer(grpcServer, healthService.Server())
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("address", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	sm.Register("grpc-server", func(ctx context.Context) error {
		healthService.Shutdown()
		return gracefulStop(ctx, grpcServer)
	})

	// HTTP API
	tracker := shutdown.NewInFlightTracker("transactions", logger)
	handler := statements.NewHandler(runner, tracker, timeouts, logger)

	mux := http.NewServeMux()
	handler.Register(mux, requestMetrics.HTTPMiddleware)

	rateLimiter := pkgmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	sm.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	securityHeaders := middleware.NewSecurityHeaders(cfg.Logger.Development)
	cors := middleware.NewCORS(cfg.CORS.AllowedOrigin)
	gzip := pkgmiddleware.Gzip(logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           securityHeaders.Middleware(cors.Middleware(gzip(rateLimiter.Middleware(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeouts.HTTPHandler,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	registerHTTPShutdown(sm, healthChecker, httpServer, tracker)

	healthChecker.SetReady(true)
	logger.Info("Service ready",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
	)

	return sm.WaitForShutdown(ctx)
}

// registerHTTPShutdown orders the HTTP API teardown: readiness fails first,
// then the listener stops accepting, then tracked transactions drain.
func registerHTTPShutdown(
	sm *shutdown.Manager,
	ready interface{ SetReady(bool) },
	server interface{ Shutdown(context.Context) error },
	tracker *shutdown.InFlightTracker,
) {
	sm.Register("in-flight-transactions", tracker.Shutdown)
	sm.RegisterHTTPServer("http-server", server)
	sm.RegisterNoErr("readiness", func() { ready.SetReady(false) })
}

// initLogger builds a production logger when ENVIRONMENT=production and a
// development logger otherwise. LOG_LEVEL overrides the level.
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err == nil {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return zap.NewNop()
	}
	return logger
}

func gracefulStop(ctx context.Context, server *grpc.Server) error {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		server.Stop()
		return ctx.Err()
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		if err != nil {
			logger.Error("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		} else {
			logger.Debug("gRPC request",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
			)
		}

		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}
