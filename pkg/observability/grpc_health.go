package observability

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DatabaseHealthService publishes the database ping result through the
// standard gRPC health protocol, both for the overall server ("") and for
// the named service.
type DatabaseHealthService struct {
	server  *health.Server
	checker *HealthChecker
	service string
	logger  *zap.Logger
	serving bool
}

// NewDatabaseHealthService creates the service; status starts NOT_SERVING
func NewDatabaseHealthService(service string, checker *HealthChecker, logger *zap.Logger) *DatabaseHealthService {
	s := &DatabaseHealthService{
		server:  health.NewServer(),
		checker: checker,
		service: service,
		logger:  logger,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Server returns the grpc_health_v1 implementation to register
func (s *DatabaseHealthService) Server() *health.Server {
	return s.server
}

// Probe runs one health check and updates the published status
func (s *DatabaseHealthService) Probe(ctx context.Context) {
	result := s.checker.Check(ctx)
	serving := result.Status == "healthy"

	if serving != s.serving {
		s.logger.Info("Database health changed",
			zap.Bool("serving", serving),
			zap.Any("checks", result.Checks),
		)
	}
	s.serving = serving

	if serving {
		s.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Shutdown marks every service NOT_SERVING permanently
func (s *DatabaseHealthService) Shutdown() {
	s.server.Shutdown()
}

func (s *DatabaseHealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.server.SetServingStatus("", status)
	s.server.SetServingStatus(s.service, status)
}
