package cache

import (
	"context"
	"sync"
	"time"
)

type entryKey struct {
	fp   Fingerprint
	kind Kind
}

type entry struct {
	artifact string
	storedAt time.Time
}

// MemoryCache is an in-process ResultCache guarded by a RWMutex.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[entryKey]entry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[entryKey]entry),
		now:     time.Now,
	}
}

// Lookup implements ResultCache.
func (c *MemoryCache) Lookup(_ context.Context, fp Fingerprint, kind Kind) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[entryKey{fp: fp, kind: kind}]
	if !ok {
		return "", false, nil
	}
	return e.artifact, true, nil
}

// Store implements ResultCache.
func (c *MemoryCache) Store(_ context.Context, fp Fingerprint, kind Kind, artifact string) error {
	if artifact == "" {
		return ErrEmptyArtifact
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey{fp: fp, kind: kind}] = entry{artifact: artifact, storedAt: c.now()}
	return nil
}

// Prune implements Pruner.
func (c *MemoryCache) Prune(before time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.storedAt.Before(before) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var (
	_ ResultCache = (*MemoryCache)(nil)
	_ Pruner      = (*MemoryCache)(nil)
)
