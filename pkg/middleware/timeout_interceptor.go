package middleware

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/kevin07696/txrunner/pkg/resilience"
)

// UnaryTimeoutInterceptor applies the handler timeout to unary gRPC calls
// that arrive without a deadline. A caller's deadline is respected as is.
func UnaryTimeoutInterceptor(config *resilience.TimeoutConfig, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, hasDeadline := ctx.Deadline(); hasDeadline {
			return handler(ctx, req)
		}

		timeoutCtx, cancel := config.HandlerContext(ctx)
		defer cancel()

		logger.Debug("Applied handler timeout",
			zap.String("method", info.FullMethod),
			zap.Duration("timeout", config.HTTPHandler),
		)
		return handler(timeoutCtx, req)
	}
}
