package render

import (
	"sync"
)

type pageCacheEntry struct {
	bitmap *Bitmap
	scale  float64
	touch  uint64 // monotone access stamp, recency for eviction
}

// PageCache keeps recently rendered page bitmaps, keyed by
// (pageNumber, scale) with scale quantized to two decimals. It is a
// true LRU: reads refresh recency and inserting past capacity evicts
// the least-recently-touched entry. Bitmaps are copied on the way in
// and on the way out, the cache never shares buffers with callers.
type PageCache struct {
	mu      sync.Mutex
	items   map[string]*pageCacheEntry
	maxSize int
	clock   uint64
	hits    uint64
	misses  uint64
}

// NewPageCache creates a cache holding at most maxSize rendered pages.
func NewPageCache(maxSize int) *PageCache {
	if maxSize <= 0 {
		maxSize = DefaultPageCacheSize
	}
	return &PageCache{
		items:   make(map[string]*pageCacheEntry),
		maxSize: maxSize,
	}
}

// Has reports whether a render exists without promoting recency.
func (c *PageCache) Has(pageNumber int, scale float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[pageKey(pageNumber, scale)]
	return ok
}

// Get returns a copy of the cached render, promoting it to
// most-recently-used on hit.
func (c *PageCache) Get(pageNumber int, scale float64) (*Bitmap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[pageKey(pageNumber, scale)]
	if !ok {
		c.misses++
		return nil, false
	}
	c.clock++
	entry.touch = c.clock
	c.hits++
	return entry.bitmap.Clone(), true
}

// Put stores a copy of the bitmap, evicting the least-recently-accessed
// entry first when the cache is full.
func (c *PageCache) Put(pageNumber int, scale float64, bitmap *Bitmap) {
	if bitmap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey(pageNumber, scale)
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictLRULocked()
	}

	c.clock++
	c.items[key] = &pageCacheEntry{
		bitmap: bitmap.Clone(),
		scale:  scale,
		touch:  c.clock,
	}
}

// Clear drops every cached render. Used on zoom changes, where all
// bitmaps go stale at once.
func (c *PageCache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*pageCacheEntry)
	c.mu.Unlock()
}

// Len returns the number of cached renders.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitMiss returns the lifetime hit and miss counts.
func (c *PageCache) HitMiss() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *PageCache) evictLRULocked() {
	var lruKey string
	var lruTouch uint64
	first := true
	for k, e := range c.items {
		if first || e.touch < lruTouch {
			lruKey = k
			lruTouch = e.touch
			first = false
		}
	}
	if !first {
		delete(c.items, lruKey)
	}
}
