package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, config *RateLimitConfig, metrics *observability.Metrics) (*RateLimiter, *fakeClock) {
	t.Helper()
	limiter, err := NewRateLimiter(config, metrics)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	limiter.now = clock.Now
	return limiter, clock
}

func TestNewRateLimiter_InvalidConfig(t *testing.T) {
	_, err := NewRateLimiter(&RateLimitConfig{RequestsPerSecond: 0, Burst: 5}, nil)
	assert.Error(t, err)

	_, err = NewRateLimiter(&RateLimitConfig{RequestsPerSecond: 5, Burst: 0}, nil)
	assert.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, clock := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 2, Burst: 3, MaxClients: 10}, nil)

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("ip:10.0.0.1") {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed, "burst caps the initial allowance")

	clock.Advance(500 * time.Millisecond)
	assert.True(t, limiter.Allow("ip:10.0.0.1"), "one token refills after half a second")
	assert.False(t, limiter.Allow("ip:10.0.0.1"))

	// refill never exceeds burst
	clock.Advance(time.Hour)
	assert.True(t, limiter.Allow("ip:10.0.0.1"))
	assert.Equal(t, 2, limiter.Remaining("ip:10.0.0.1"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxClients: 10}, nil)

	assert.True(t, limiter.Allow("ip:a"))
	assert.False(t, limiter.Allow("ip:a"))
	assert.True(t, limiter.Allow("ip:b"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 1, Burst: 5, MaxClients: 10}, nil)

	assert.Equal(t, 5, limiter.Remaining("ip:new"))
	limiter.Allow("ip:new")
	assert.Equal(t, 4, limiter.Remaining("ip:new"))
}

func TestRateLimiter_BoundedClientTable(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxClients: 2}, nil)

	limiter.Allow("ip:a")
	limiter.Allow("ip:b")
	limiter.Allow("ip:c")
	assert.Equal(t, 2, limiter.Len())

	// ip:a was evicted so it starts with a full bucket again
	assert.True(t, limiter.Allow("ip:a"))
}

func TestRateLimiter_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxClients: 10}, metrics)

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/oidc", nil)
	req.RemoteAddr = "192.0.2.10:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("memory")))

	// a different client is unaffected
	other := httptest.NewRequest(http.MethodPost, "/auth/oidc", nil)
	other.RemoteAddr = "192.0.2.11:5555"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxClients: 10}, nil)
	proxies, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	handler := httputil.TrustedProxyMiddleware(proxies)(limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	codes := make([]int, 0, 3)
	for _, forwarded := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodPost, "/auth/oidc", nil)
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, limiter.Len())
}

func TestRateLimiter_KeysClientsBehindTrustedProxy(t *testing.T) {
	limiter, _ := newTestLimiter(t, &RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxClients: 10}, nil)
	proxies, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	handler := httputil.TrustedProxyMiddleware(proxies)(limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	for _, forwarded := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodPost, "/auth/oidc", nil)
		req.RemoteAddr = "10.1.2.3:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, forwarded)
	}
	assert.Equal(t, 2, limiter.Len())
}
