// Package cache implements domain.Cache: an in-process LRU for the
// Community tier, Redis for the Pro tier, and a layered mode that puts
// the LRU in front of Redis.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leaseguard/kestrel/internal/domain"
)

// Key classes keep the byte, report, and counter namespaces from
// colliding even when callers reuse the same name.
const (
	classBytes   = "kv"
	classReport  = "report"
	classCounter = "ctr"
)

// LRUCache is a size-bounded in-process cache with per-entry TTLs.
// Reports are stored as live pointers, not serialized copies; callers
// must not mutate what GetReport hands back.
type LRUCache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]*list.Element
	recency *list.List // front is most recently used
	windows map[string]*counterWindow
}

type lruEntry struct {
	key      string
	val      any // []byte or *domain.ScreeningReport
	deadline time.Time
}

type counterWindow struct {
	count   int64
	resetAt time.Time
}

// NewLRUCache creates a cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		cap:     capacity,
		entries: make(map[string]*list.Element),
		recency: list.New(),
		windows: make(map[string]*counterWindow),
	}
}

func lruKey(tenantID, class, name string) string {
	return tenantID + "/" + class + "/" + name
}

// expired reports whether the entry's deadline has passed. A zero
// deadline never expires.
func (e *lruEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// lookup fetches a live entry and refreshes its recency. Expired
// entries are removed on sight.
func (c *LRUCache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*lruEntry)
	if entry.expired(time.Now()) {
		c.drop(elem)
		return nil, false
	}
	c.recency.MoveToFront(elem)
	return entry.val, true
}

// store inserts or replaces an entry, evicting from the cold end when
// over capacity. ttl <= 0 means no expiry.
func (c *LRUCache) store(key string, val any, ttl time.Duration) {
	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.val = val
		entry.deadline = deadline
		c.recency.MoveToFront(elem)
		return
	}

	c.entries[key] = c.recency.PushFront(&lruEntry{key: key, val: val, deadline: deadline})
	for len(c.entries) > c.cap {
		if tail := c.recency.Back(); tail != nil {
			c.drop(tail)
		}
	}
}

// drop removes an element. Caller holds the lock.
func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*lruEntry).key)
}

// Get returns the raw bytes at key, or nil, nil on a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("cache: tenantID is required")
	}
	val, ok := c.lookup(lruKey(tenantID, classBytes, key))
	if !ok {
		return nil, nil
	}
	data, _ := val.([]byte)
	return data, nil
}

// Set stores raw bytes at key for ttl.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenantID is required")
	}
	c.store(lruKey(tenantID, classBytes, key), value, ttl)
	return nil
}

// Delete removes the bytes entry at key.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[lruKey(tenantID, classBytes, key)]; ok {
		c.drop(elem)
	}
	return nil
}

// GetReport returns the applicant's cached report without a
// deserialization round-trip.
func (c *LRUCache) GetReport(ctx context.Context, tenantID string, applicantID string) (*domain.ScreeningReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("cache: tenantID is required")
	}
	val, ok := c.lookup(lruKey(tenantID, classReport, applicantID))
	if !ok {
		return nil, nil
	}
	report, _ := val.(*domain.ScreeningReport)
	return report, nil
}

// SetReport caches the report pointer itself. Reports are immutable
// once issued, so sharing the pointer is safe.
func (c *LRUCache) SetReport(ctx context.Context, tenantID string, applicantID string, report *domain.ScreeningReport, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenantID is required")
	}
	c.store(lruKey(tenantID, classReport, applicantID), report, ttl)
	return nil
}

// IncrementCounter bumps the fixed-window counter at key. A counter
// whose window has lapsed restarts at one.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("cache: tenantID is required")
	}

	k := lruKey(tenantID, classCounter, key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[k]
	if !ok || now.After(w.resetAt) {
		c.windows[k] = &counterWindow{count: 1, resetAt: now.Add(window)}
		return 1, nil
	}
	w.count++
	return w.count, nil
}

// Ping always succeeds; the process-local cache has no backend to lose.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close discards all entries and counters.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*counterWindow)
	return nil
}

// Stats returns the current entry count and the configured capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.cap
}
