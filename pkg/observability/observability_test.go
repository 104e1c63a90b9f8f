package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) HealthCheck(ctx context.Context) error {
	return f.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantDB     string
	}{
		{name: "healthy", db: &fakePinger{}, wantStatus: http.StatusOK, wantDB: "healthy"},
		{name: "unhealthy", db: &fakePinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantDB: "unhealthy: connection refused"},
		{name: "not configured", db: nil, wantStatus: http.StatusOK, wantDB: "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker(tt.db, time.Second)
			rec := httptest.NewRecorder()
			checker.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body HealthStatus
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantDB, body.Checks["database"])
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewRequestMetrics(reg)
	checker := NewHealthChecker(&fakePinger{}, time.Second)
	handler := NewMetricsHandler(reg, checker)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)
	checker.SetReady(true)
	assert.Equal(t, http.StatusOK, get("/ready").Code)

	wrapped := metrics.HTTPMiddleware("/api/v1/query", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/query", nil))

	rec := get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `http_requests_total{method="POST",path="/api/v1/query",status="418"} 1`))
}

func TestUnaryServerInterceptor(t *testing.T) {
	metrics := NewRequestMetrics(prometheus.NewRegistry())
	interceptor := metrics.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	_, err = interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.grpcRequestsTotal.WithLabelValues(info.FullMethod, "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.grpcRequestsTotal.WithLabelValues(info.FullMethod, "NotFound")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.grpcRequestsInFlight))
}

func TestDatabaseHealthService_Probe(t *testing.T) {
	db := &fakePinger{}
	svc := NewDatabaseHealthService("txrunner.v1.TransactionRunner", NewHealthChecker(db, time.Second), zap.NewNop())

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := svc.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	svc.Probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("txrunner.v1.TransactionRunner"))

	db.err = errors.New("connection refused")
	svc.Probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	svc.Shutdown()
	db.err = nil
	svc.Probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""), "status frozen after shutdown")
}
