// Package snapshot keeps a bounded, write-through cache of job metadata keyed
// by job URL. It exists so the deck can re-render jobs it has already shown
// without a round trip; entries are advisory and server data always wins.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jobdeck/swipequeue/internal/observability"
	"github.com/jobdeck/swipequeue/internal/store"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// Cache is safe for concurrent use.
type Cache struct {
	store    store.Store
	capacity int

	mu     sync.Mutex
	loaded bool
	byURL  map[string]models.JobSnapshot
}

// NewCache creates a Cache that holds at most capacity entries.
func NewCache(st store.Store, capacity int) *Cache {
	return &Cache{
		store:    st,
		capacity: capacity,
		byURL:    make(map[string]models.JobSnapshot),
	}
}

// EnsureLoaded hydrates the cache from the store. The first call does the
// work; later calls are no-ops. If the store holds more rows than capacity
// allows (capacity was lowered between runs), the oldest rows are evicted.
func (c *Cache) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}

	snaps, err := c.store.ListJobSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}

	// ListJobSnapshots returns oldest first.
	var evict []string
	if over := len(snaps) - c.capacity; over > 0 {
		for _, snap := range snaps[:over] {
			evict = append(evict, snap.JobURL)
		}
		snaps = snaps[over:]
	}

	c.byURL = make(map[string]models.JobSnapshot, len(snaps))
	for _, snap := range snaps {
		c.byURL[snap.JobURL] = *snap
	}
	c.loaded = true

	if len(evict) > 0 {
		observability.SnapshotEvictions.Add(float64(len(evict)))
		if err := c.store.DeleteJobSnapshots(ctx, evict); err != nil {
			slog.Warn("evicted snapshots not removed from store", "count", len(evict), "error", err)
		}
	}
	return nil
}

// Put records job metadata at swipe time and writes it through to the store.
// Re-putting a known URL refreshes its timestamp, which also protects it from
// eviction for longer.
func (c *Cache) Put(ctx context.Context, job models.SwipedJob) error {
	snap := models.JobSnapshot{
		JobURL:   job.JobURL,
		Title:    job.Title,
		Company:  job.Company,
		Source:   job.Source,
		CachedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.byURL[snap.JobURL] = snap
	evict := c.evictOverflowLocked()
	c.mu.Unlock()

	if err := c.store.UpsertJobSnapshot(ctx, &snap); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	if len(evict) > 0 {
		observability.SnapshotEvictions.Add(float64(len(evict)))
		if err := c.store.DeleteJobSnapshots(ctx, evict); err != nil {
			slog.Warn("evicted snapshots not removed from store", "count", len(evict), "error", err)
		}
	}
	return nil
}

// Get returns the snapshot for a job URL, if cached.
func (c *Cache) Get(jobURL string) (models.JobSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.byURL[jobURL]
	return snap, ok
}

// All returns every cached snapshot, most recently cached first.
func (c *Cache) All() []models.JobSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snaps := make([]models.JobSnapshot, 0, len(c.byURL))
	for _, snap := range c.byURL {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CachedAt.After(snaps[j].CachedAt)
	})
	return snaps
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byURL)
}

// evictOverflowLocked drops the oldest entries until the cache fits its
// capacity and returns their URLs. Callers must hold mu.
func (c *Cache) evictOverflowLocked() []string {
	over := len(c.byURL) - c.capacity
	if over <= 0 {
		return nil
	}

	snaps := make([]models.JobSnapshot, 0, len(c.byURL))
	for _, snap := range c.byURL {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CachedAt.Before(snaps[j].CachedAt)
	})

	evicted := make([]string, 0, over)
	for _, snap := range snaps[:over] {
		delete(c.byURL, snap.JobURL)
		evicted = append(evicted, snap.JobURL)
	}
	return evicted
}
