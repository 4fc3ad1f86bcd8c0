// Package storage opens the PostgreSQL and Redis connections shared by the
// gateway's stores, audit sinks and rate limiter.
package storage
