package domain

import (
	"context"
	"time"
)

// Cache stores screening reports for cross-listing reuse and backs the
// per-tenant quota counters. Every method is tenant-scoped. The
// Community tier uses an in-process LRU; the Pro tier layers that LRU
// in front of Redis.
type Cache interface {
	// Get returns the raw value at key, or nil, nil on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores value at key until ttl elapses.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetReport returns the applicant's cached screening report, or
	// nil, nil on a miss. Callers must treat the result as immutable.
	GetReport(ctx context.Context, tenantID string, applicantID string) (*ScreeningReport, error)

	// SetReport caches a report so repeat screens inside the reuse
	// window skip the provider round-trips.
	SetReport(ctx context.Context, tenantID string, applicantID string, report *ScreeningReport, ttl time.Duration) error

	// IncrementCounter bumps a fixed-window counter and returns the
	// count in the current window. The first increment opens the
	// window. Backs the hourly screening quota.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Ping reports whether the cache backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// CacheConfig selects and tunes the cache implementation.
type CacheConfig struct {
	// Type is "memory" (Community) or "redis" (Pro).
	Type string

	// LocalMaxSize caps the in-process LRU entry count; LocalTTL bounds
	// how stale its entries may get when it fronts Redis.
	LocalMaxSize int
	LocalTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase reads through the local LRU before Redis. Only
	// meaningful with Type "redis".
	EnableTwoPhase bool
}
