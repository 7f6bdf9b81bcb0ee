package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
)

// MemoryCache is the in-process Cache. Expired entries are dropped lazily
// on read and swept on every write.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// NewMemoryCache creates an in-process session cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) sweepLocked() {
	now := c.now()
	for handle, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, handle)
		}
	}
	metrics.SessionCacheEntries.Set(float64(len(c.entries)))
}

// Put stores the run under a new handle.
func (c *MemoryCache) Put(ctx context.Context, tenantID string, run *models.MatchRun) (string, error) {
	handle := NewHandle()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[handle] = &memoryEntry{
		entry: &Entry{
			Handle:    handle,
			TenantID:  tenantID,
			Run:       run,
			CreatedAt: now,
		},
		expiresAt: now.Add(c.ttl),
	}
	c.sweepLocked()

	return handle, nil
}

// Get returns the entry for a handle, or nil when unknown or expired.
func (c *MemoryCache) Get(ctx context.Context, tenantID, handle string) (*Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[handle]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) || e.entry.TenantID != tenantID {
		return nil, nil
	}
	return e.entry, nil
}

// Delete removes the entry for a handle.
func (c *MemoryCache) Delete(ctx context.Context, tenantID, handle string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[handle]
	if !ok || e.entry.TenantID != tenantID {
		return false, nil
	}
	delete(c.entries, handle)
	metrics.SessionCacheEntries.Set(float64(len(c.entries)))
	return true, nil
}
