// Package middleware provides per-client rate limiting for the exchange endpoint.
//
// RateLimiter keeps a token bucket per client address in memory. The client
// table is an LRU bounded by MaxClients so a flood of distinct addresses
// cannot grow it without limit.
//
//	limiter, err := middleware.NewRateLimiter(&middleware.RateLimitConfig{
//		RequestsPerSecond: 10,
//		Burst:             20,
//		MaxClients:        10000,
//	}, metrics)
//	router.Use(limiter.Handler)
//
// DistributedRateLimiter shares a fixed window counter through Redis so
// several gateway replicas enforce one limit. It fails open when Redis is
// unreachable.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient,
//		middleware.DistributedConfigFrom(cfg), "", metrics)
//	router.Use(limiter.Handler)
//
// Rejected requests get 429 with a Retry-After header.
package middleware
