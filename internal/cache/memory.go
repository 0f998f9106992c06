package cache

import (
	"sync"
	"time"
)

type memoryEntry[T any] struct {
	data      T
	timestamp time.Time
	ttl       time.Duration
}

func (e memoryEntry[T]) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// Memory is a bounded in-memory key/value store with per-entry TTL.
// Expired entries are treated as absent and removed lazily on read;
// when the store is full, expired entries are swept first and then the
// oldest entry by write time is evicted. Reads do not refresh recency,
// this is deliberately not an LRU (the page render cache is).
type Memory[T any] struct {
	mu      sync.Mutex
	items   map[string]memoryEntry[T]
	maxSize int
}

// NewMemory creates an in-memory store holding at most maxSize live entries.
// maxSize <= 0 falls back to a default of 100.
func NewMemory[T any](maxSize int) *Memory[T] {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Memory[T]{
		items:   make(map[string]memoryEntry[T]),
		maxSize: maxSize,
	}
}

// Set stores data under key for ttl. A ttl <= 0 removes the key.
func (c *Memory[T]) Set(key string, data T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return
	}

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.cleanupLocked(time.Now())
		if len(c.items) >= c.maxSize {
			c.evictOldestLocked()
		}
	}

	c.items[key] = memoryEntry[T]{
		data:      data,
		timestamp: time.Now(),
		ttl:       ttl,
	}
}

// Get retrieves the value for key. An expired entry is deleted and
// reported as a miss.
func (c *Memory[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if entry.expired(time.Now()) {
		delete(c.items, key)
		return zero, false
	}
	return entry.data, true
}

// Has reports whether a live entry exists for key, with the same lazy
// expiry behaviour as Get.
func (c *Memory[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return false
	}
	if entry.expired(time.Now()) {
		delete(c.items, key)
		return false
	}
	return true
}

// Cleanup removes every currently-expired entry. Idempotent.
func (c *Memory[T]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked(time.Now())
}

// Len sweeps expired entries and returns the live count, so the result
// is always consistent with TTL state at observation time.
func (c *Memory[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked(time.Now())
	return len(c.items)
}

// Clear removes all items. Useful for tests or session teardown.
func (c *Memory[T]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]memoryEntry[T])
	c.mu.Unlock()
}

func (c *Memory[T]) cleanupLocked(now time.Time) {
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
}

// evictOldestLocked drops the entry with the earliest write time.
func (c *Memory[T]) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.items {
		if first || e.timestamp.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.timestamp
			first = false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}
