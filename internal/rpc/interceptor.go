package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor assigns a correlation id to every call and logs its
// outcome.
func LoggingInterceptor(l *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		cid := incoming(ctx, CorrelationIDHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx = withCorrelationID(ctx, cid)
		_ = grpc.SetHeader(ctx, metadata.Pairs(CorrelationIDHeader, cid))

		start := time.Now()
		resp, err := handler(ctx, req)
		if l == nil {
			return resp, err
		}

		attrs := []any{
			"cid", cid,
			"method", info.FullMethod,
			"tenant", incoming(ctx, TenantHeader),
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			l.Warn("grpc_request", append(attrs, "error", err)...)
		} else {
			l.Info("grpc_request", attrs...)
		}
		return resp, err
	}
}
