package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// RateLimitConfig defines per-client token bucket settings
type RateLimitConfig struct {
	// RequestsPerSecond is the steady refill rate of a bucket
	RequestsPerSecond int
	// Burst is the bucket capacity
	Burst int
	// MaxClients bounds the number of tracked clients. The least recently
	// seen client is evicted when the table is full.
	MaxClients int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxClients:        10000,
	}
}

// RateLimiter implements rate limiting using a token bucket per key
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *lru.Cache[string, *bucket]
	now     func() time.Time
	metrics *observability.Metrics
	mu      sync.Mutex
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(config *RateLimitConfig, metrics *observability.Metrics) (*RateLimiter, error) {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.RequestsPerSecond <= 0 || config.Burst <= 0 {
		return nil, fmt.Errorf("rate limit requires positive rate and burst")
	}
	size := config.MaxClients
	if size <= 0 {
		size = DefaultRateLimitConfig().MaxClients
	}

	buckets, err := lru.New[string, *bucket](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create client table: %w", err)
	}

	return &RateLimiter{
		config:  config,
		buckets: buckets,
		now:     time.Now,
		metrics: metrics,
	}, nil
}

func (rl *RateLimiter) bucketFor(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{
			tokens:     float64(rl.config.Burst),
			lastUpdate: rl.now(),
		}
		rl.buckets.Add(key, b)
	}
	return b
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	b := rl.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(b.lastUpdate)
	if elapsed > 0 {
		b.tokens = math.Min(float64(rl.config.Burst), b.tokens+elapsed.Seconds()*float64(rl.config.RequestsPerSecond))
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the number of whole tokens left for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	b, ok := rl.buckets.Peek(key)
	rl.mu.Unlock()

	if !ok {
		return rl.config.Burst
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.tokens)
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	return rl.buckets.Len()
}

// Handler wraps an HTTP handler with per-client rate limiting
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + httputil.ClientIP(r)

		if !rl.Allow(key) {
			rl.metrics.IncRateLimited("memory")
			observability.FromContext(r.Context()).WithField("client", key).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerSecond))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerSecond))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining(key)))
		next.ServeHTTP(w, r)
	})
}
