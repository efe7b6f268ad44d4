package cache

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is the number of writes between full expiry sweeps.
const sweepEvery = 1024

type memoryEntry struct {
	value     []byte
	counter   int64
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache implements the Cache interface in process memory. It is the
// default when no Redis URL is configured; single-node deployments lose only
// cross-restart cache warmth, nothing correctness-relevant.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	writes  int
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*memoryEntry)}
}

func (c *MemoryCache) Ping(_ context.Context) error {
	return nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &memoryEntry{value: value, expiresAt: expiry(ttl)}
	c.maybeSweep()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		e = &memoryEntry{}
		c.entries[key] = e
	}
	e.counter++
	// Matches the Redis pipeline: every increment refreshes the window.
	e.expiresAt = now.Add(expiry)
	c.maybeSweep()
	return e.counter, nil
}

// maybeSweep drops expired entries once per sweepEvery writes so the map
// cannot grow without bound under churning keys. Callers must hold mu.
func (c *MemoryCache) maybeSweep() {
	c.writes++
	if c.writes < sweepEvery {
		return
	}
	c.writes = 0

	now := time.Now()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Compile-time check that MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
