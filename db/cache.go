package db

import (
	"context"
	"sync"
	"time"
)

// Cache is the small TTL cache used for intent-recognition results. Both
// implementations are safe for concurrent use; Get returns false on miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is the in-process fallback used when no Redis address is
// configured. Expired entries are dropped lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// InstrumentedCache wraps a Cache and invokes onHit for every successful Get.
type InstrumentedCache struct {
	inner Cache
	onHit func()
}

func NewInstrumentedCache(inner Cache, onHit func()) *InstrumentedCache {
	return &InstrumentedCache{inner: inner, onHit: onHit}
}

func (c *InstrumentedCache) Get(ctx context.Context, key string) (string, bool) {
	value, ok := c.inner.Get(ctx, key)
	if ok && c.onHit != nil {
		c.onHit()
	}
	return value, ok
}

func (c *InstrumentedCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.inner.Set(ctx, key, value, ttl)
}
