package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leaseguard/kestrel/internal/domain"
)

// New builds the cache the config asks for: the in-process LRU for the
// Community tier, Redis for Pro, or the layered combination when
// EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewLayeredCache(cfg)
		}
		return NewRedisCache(cfg)
	default:
		return nil, fmt.Errorf("cache: unknown type %q", cfg.Type)
	}
}

// LayeredCache reads through a process-local LRU before Redis. Redis
// is authoritative; the local layer holds short-lived copies so hot
// reports skip the network and the JSON round-trip.
type LayeredCache struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewLayeredCache builds the local layer and connects the remote one.
func NewLayeredCache(cfg domain.CacheConfig) (*LayeredCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}

	localTTL := cfg.LocalTTL
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}

	return &LayeredCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		remote:   remote,
		localTTL: localTTL,
	}, nil
}

// localTTLFor caps the local copy's lifetime. It never outlives the
// remote entry, and never exceeds the configured local TTL.
func (c *LayeredCache) localTTLFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.localTTL
	}
	return min(ttl, c.localTTL)
}

// Get reads through the local layer. A remote hit is copied into the
// local layer for subsequent reads.
func (c *LayeredCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes to Redis first; the local copy is best-effort and only
// written once the authoritative store has accepted the value.
func (c *LayeredCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	_ = c.local.Set(ctx, tenantID, key, value, c.localTTLFor(ttl))
	return nil
}

// Delete removes the entry from both layers, attempting both even if
// one fails.
func (c *LayeredCache) Delete(ctx context.Context, tenantID string, key string) error {
	return errors.Join(
		c.local.Delete(ctx, tenantID, key),
		c.remote.Delete(ctx, tenantID, key),
	)
}

// GetReport reads through the local layer. Remote hits are kept
// locally as decoded pointers, so repeat reads pay no decode cost.
func (c *LayeredCache) GetReport(ctx context.Context, tenantID string, applicantID string) (*domain.ScreeningReport, error) {
	report, err := c.local.GetReport(ctx, tenantID, applicantID)
	if err != nil || report != nil {
		return report, err
	}

	report, err = c.remote.GetReport(ctx, tenantID, applicantID)
	if err != nil {
		return nil, err
	}
	if report != nil {
		_ = c.local.SetReport(ctx, tenantID, applicantID, report, c.localTTL)
	}
	return report, nil
}

// SetReport writes the report to Redis, then keeps a local copy.
func (c *LayeredCache) SetReport(ctx context.Context, tenantID string, applicantID string, report *domain.ScreeningReport, ttl time.Duration) error {
	if err := c.remote.SetReport(ctx, tenantID, applicantID, report, ttl); err != nil {
		return err
	}
	_ = c.local.SetReport(ctx, tenantID, applicantID, report, c.localTTLFor(ttl))
	return nil
}

// IncrementCounter goes straight to Redis. Quota counts must be exact
// across replicas, so the local layer takes no part in them.
func (c *LayeredCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both layers.
func (c *LayeredCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("cache: local layer: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("cache: remote layer: %w", err)
	}
	return nil
}

// Close shuts down both layers.
func (c *LayeredCache) Close() error {
	return errors.Join(c.local.Close(), c.remote.Close())
}

// Stats reports the local layer's size and capacity.
func (c *LayeredCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
