package srs

import (
	"container/list"
	"fmt"
	"sync"
)

// TransformCache keeps built transformers with LRU eviction.
//
// Records whose geometries carry their own CRS may alternate between a handful
// of coordinate systems. The cache keeps the transformer for each (source,
// target) pair so a change of CRS between consecutive records does not rebuild
// the operation every time.
//
// Keys are descriptor identities: two distinct *CRS values are distinct keys
// even when they describe the same system.
//
// Example:
//
//	cache := srs.NewTransformCache(srs.DefaultFactory, 16)
//	ct, err := cache.Get(srcCRS, dstCRS)
type TransformCache struct {
	factory    Factory
	maxEntries int
	entries    map[cacheKey]*cacheEntry
	lru        *list.List // LRU list (most recent at front)
	mu         sync.Mutex

	hits, misses int
}

type cacheKey struct {
	src, dst *CRS
}

type cacheEntry struct {
	key     cacheKey
	ct      Transformer
	element *list.Element // Position in LRU list
}

// NewTransformCache creates a cache backed by factory holding at most
// maxEntries transformers. A maxEntries of 0 means unlimited.
func NewTransformCache(factory Factory, maxEntries int) *TransformCache {
	if factory == nil {
		factory = DefaultFactory
	}
	return &TransformCache{
		factory:    factory,
		maxEntries: maxEntries,
		entries:    make(map[cacheKey]*cacheEntry),
		lru:        list.New(),
	}
}

// Get returns the transformer from src to dst, building it on a miss.
func (c *TransformCache) Get(src, dst *CRS) (Transformer, error) {
	key := cacheKey{src: src, dst: dst}

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.hits++
		c.lru.MoveToFront(entry.element)
		c.mu.Unlock()
		return entry.ct, nil
	}
	c.misses++
	c.mu.Unlock()

	// Build outside the lock; factories may be slow
	ct, err := c.factory.NewTransformer(src, dst)
	if err != nil {
		return nil, fmt.Errorf("build transformation %s -> %s: %w", src, dst, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.lru.MoveToFront(entry.element)
		return entry.ct, nil
	}

	if c.maxEntries > 0 {
		for c.lru.Len() >= c.maxEntries {
			c.evictLRU()
		}
	}

	entry := &cacheEntry{key: key, ct: ct}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
	return ct, nil
}

// evictLRU removes the least recently used transformer.
// Must be called with c.mu locked.
func (c *TransformCache) evictLRU() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)
}

// Clear removes all transformers from the cache.
func (c *TransformCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[cacheKey]*cacheEntry)
	c.lru.Init()
}

// Stats returns cache statistics.
func (c *TransformCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// CacheStats holds cache performance counters.
type CacheStats struct {
	Entries int // Number of transformers currently cached
	Hits    int // Lookups served from the cache
	Misses  int // Lookups that built a transformer
}
