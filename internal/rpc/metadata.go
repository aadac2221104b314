package rpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Metadata keys read from incoming calls.
const (
	TenantHeader        = "x-tenant-id"
	ActorHeader         = "x-actor-id"
	CorrelationIDHeader = "x-correlation-id"
)

type correlationIDKey struct{}

// caller identifies who a call acts for.
type caller struct {
	tenantID string
	actor    string
}

func incoming(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func callerFrom(ctx context.Context) (caller, error) {
	c := caller{tenantID: incoming(ctx, TenantHeader), actor: incoming(ctx, ActorHeader)}

	var missing []string
	if c.tenantID == "" {
		missing = append(missing, TenantHeader)
	}
	if c.actor == "" {
		missing = append(missing, ActorHeader)
	}
	if len(missing) > 0 {
		return caller{}, status.Error(codes.InvalidArgument, "missing required metadata: "+strings.Join(missing, ", "))
	}
	return c, nil
}

func withCorrelationID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, cid)
}

// CorrelationIDFromContext returns the id assigned to the current call.
func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
