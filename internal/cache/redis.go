package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leaseguard/kestrel/internal/domain"
)

const (
	redisDialTimeout  = 5 * time.Second
	redisReadTimeout  = 3 * time.Second
	redisWriteTimeout = 3 * time.Second
)

// RedisCache backs domain.Cache with a shared Redis instance so report
// and quota state survive restarts and is visible to every replica.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection before
// returning.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// redisKey namespaces entries by tenant and class under a service
// prefix, so one Redis instance can serve several deployments.
func redisKey(tenantID, class, name string) string {
	return "kestrel:" + tenantID + ":" + class + ":" + name
}

// clampTTL maps negative TTLs to "store without expiry". Redis rejects
// negative expirations outright.
func clampTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func encodeReport(report *domain.ScreeningReport) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("cache: encode report: %w", err)
	}
	return data, nil
}

func decodeReport(data []byte) (*domain.ScreeningReport, error) {
	var report domain.ScreeningReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("cache: decode report: %w", err)
	}
	return &report, nil
}

// Get returns the raw bytes at key, or nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("cache: tenantID is required")
	}
	data, err := c.client.Get(ctx, redisKey(tenantID, classBytes, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return data, nil
}

// Set stores raw bytes at key for ttl. ttl <= 0 stores without expiry.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenantID is required")
	}
	if err := c.client.Set(ctx, redisKey(tenantID, classBytes, key), value, clampTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes the bytes entry at key.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenantID is required")
	}
	if err := c.client.Del(ctx, redisKey(tenantID, classBytes, key)).Err(); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// GetReport returns the applicant's cached report, or nil, nil on a
// miss.
func (c *RedisCache) GetReport(ctx context.Context, tenantID string, applicantID string) (*domain.ScreeningReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("cache: tenantID is required")
	}
	data, err := c.client.Get(ctx, redisKey(tenantID, classReport, applicantID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get report %s: %w", applicantID, err)
	}
	return decodeReport(data)
}

// SetReport caches the report as JSON for ttl. ttl <= 0 stores without
// expiry.
func (c *RedisCache) SetReport(ctx context.Context, tenantID string, applicantID string, report *domain.ScreeningReport, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenantID is required")
	}
	data, err := encodeReport(report)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, redisKey(tenantID, classReport, applicantID), data, clampTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("cache: set report %s: %w", applicantID, err)
	}
	return nil
}

// IncrementCounter bumps the fixed-window counter at key. The window
// TTL is attached with ExpireNX, which also repairs a counter whose
// TTL was lost so a stuck key cannot throttle a tenant forever.
// Requires Redis 7 or newer.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("cache: tenantID is required")
	}

	k := redisKey(tenantID, classCounter, key)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache: increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
