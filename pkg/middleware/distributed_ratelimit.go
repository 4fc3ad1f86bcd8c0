package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// DistributedRateLimitConfig defines a fixed window shared through Redis
type DistributedRateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the window
	RequestsPerWindow int
	// WindowDuration is the length of a window
	WindowDuration time.Duration
}

// DistributedConfigFrom converts token bucket settings into a one minute window
func DistributedConfigFrom(config *RateLimitConfig) *DistributedRateLimitConfig {
	return &DistributedRateLimitConfig{
		RequestsPerWindow: config.RequestsPerSecond*60 + config.Burst,
		WindowDuration:    time.Minute,
	}
}

// DistributedRateLimiter implements rate limiting using Redis so limits are
// shared across gateway instances
type DistributedRateLimiter struct {
	redis   *redis.Client
	config  *DistributedRateLimitConfig
	prefix  string
	metrics *observability.Metrics
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *DistributedRateLimitConfig, prefix string, metrics *observability.Metrics) *DistributedRateLimiter {
	if config == nil {
		config = DistributedConfigFrom(DefaultRateLimitConfig())
	}
	if prefix == "" {
		prefix = "oidc-gateway:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:   redisClient,
		config:  config,
		prefix:  prefix,
		metrics: metrics,
	}
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow increments the window counter for key. On Redis errors the request
// is allowed and the error returned.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.redisKey(key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return true, fmt.Errorf("redis error: %w", err)
		}
	}

	return count <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.redisKey(key)).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns the time until the window for key resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.redisKey(key)).Result()
}

// Reset clears the counter for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.redisKey(key)).Err()
}

// Handler wraps an HTTP handler with distributed rate limiting. Redis
// failures let the request through.
func (rl *DistributedRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "ip:" + httputil.ClientIP(r)

		allowed, err := rl.Allow(ctx, key)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("distributed rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerWindow))

		if !allowed {
			rl.metrics.IncRateLimited("redis")
			retryAfter := rl.config.WindowDuration
			if ttl, err := rl.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		if remaining, err := rl.Remaining(ctx, key); err == nil {
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		}
		next.ServeHTTP(w, r)
	})
}

// HealthCheck verifies Redis connectivity for rate limiting
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx).Err()
}
