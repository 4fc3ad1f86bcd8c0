package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDistributedConfigFrom(t *testing.T) {
	cfg := DistributedConfigFrom(&RateLimitConfig{RequestsPerSecond: 2, Burst: 5})
	assert.Equal(t, 125, cfg.RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.WindowDuration)
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, &DistributedRateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}, "test", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "ip:a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "ip:a")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := limiter.Remaining(ctx, "ip:a")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := limiter.TTL(ctx, "ip:a")
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	// the window expires
	mr.FastForward(time.Minute + time.Second)
	allowed, err = limiter.Allow(ctx, "ip:a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimiter_RemainingAndReset(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, &DistributedRateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}, "", nil)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "ip:b")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.Allow(ctx, "ip:b")
	require.NoError(t, err)
	remaining, err = limiter.Remaining(ctx, "ip:b")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	require.NoError(t, limiter.Reset(ctx, "ip:b"))
	remaining, err = limiter.Remaining(ctx, "ip:b")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestDistributedRateLimiter_Handler(t *testing.T) {
	_, client := newTestRedis(t)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	limiter := NewDistributedRateLimiter(client, &DistributedRateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "", metrics)

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/oidc", nil)
	req.RemoteAddr = "198.51.100.4:4000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("redis")))
}

func TestDistributedRateLimiter_FailsOpen(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, nil, "", nil)
	mr.Close()

	called := false
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/oidc", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Error(t, limiter.HealthCheck(context.Background()))
}
