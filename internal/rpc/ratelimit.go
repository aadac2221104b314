package rpc

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errBadScriptReply = errors.New("rate limiter: unexpected script reply")

// TokenBucket is a Redis backed token bucket shared by every ledgerd
// replica.
type TokenBucket struct {
	Redis      *redis.Client
	Prefix     string
	Capacity   int
	RefillRate float64 // tokens per second
}

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(data[1])
local last = tonumber(data[2])

if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = now - last
if delta < 0 then delta = 0 end

local filled = tokens + (delta * refill_rate)
if filled > capacity then filled = capacity end

local allowed = 0
if filled >= 1 then
  allowed = 1
  filled = filled - 1
end

redis.call('HSET', key, 'tokens', filled, 'last', now)
redis.call('EXPIRE', key, ttl)

return {allowed, filled}
`)

func (b *TokenBucket) key(raw string) string {
	if b.Prefix == "" {
		return raw
	}
	return b.Prefix + ":" + raw
}

// Allow takes one token for key. It reports whether the call may proceed and
// how many whole tokens remain. A bucket without Redis or capacity allows
// everything.
func (b *TokenBucket) Allow(ctx context.Context, key string) (bool, int, error) {
	if b.Redis == nil || b.Capacity <= 0 || b.RefillRate <= 0 {
		return true, 0, nil
	}

	now := float64(time.Now().UnixNano()) / 1e9
	ttl := int64(float64(b.Capacity)/b.RefillRate) + 1

	res, err := tokenBucketScript.Run(ctx, b.Redis, []string{b.key(key)}, b.Capacity, b.RefillRate, now, ttl).Result()
	if err != nil {
		return false, 0, err
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return false, 0, errBadScriptReply
	}
	allowed, ok := toFloat64(vals[0])
	if !ok {
		return false, 0, errBadScriptReply
	}
	remaining, ok := toFloat64(vals[1])
	if !ok {
		return false, 0, errBadScriptReply
	}
	return allowed == 1, int(remaining), nil
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// RateLimitInterceptor throttles calls per tenant. Calls without a tenant
// header pass through and are rejected by the service itself.
func RateLimitInterceptor(b *TokenBucket, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		tenant := incoming(ctx, TenantHeader)
		if tenant == "" {
			return handler(ctx, req)
		}

		allowed, _, err := b.Allow(ctx, tenant)
		if err != nil {
			logger.Warn("rate_limiter_unavailable", "cid", CorrelationIDFromContext(ctx), "tenant", tenant, "error", err)
			return nil, status.Error(codes.Unavailable, "rate limiter unavailable")
		}
		if !allowed {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for tenant %s", tenant)
		}
		return handler(ctx, req)
	}
}
