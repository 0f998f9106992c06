package cache

import (
	"context"
	"encoding/json"
	"time"

	"cvpolish-core/pkg/logging/logging"

	"go.uber.org/zap"
)

const blobFormatVersion = 1

// persistedEntry is the serialized form of one cache entry. Timestamp is
// unix milliseconds, TTL is milliseconds, so the blob stays portable.
type persistedEntry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	TTL       int64 `json:"ttl"`
}

// persistedBlob is the on-disk contract: a versioned envelope holding
// the whole key -> entry map for one store.
type persistedBlob[T any] struct {
	Version int                          `json:"version"`
	Entries map[string]persistedEntry[T] `json:"entries"`
}

// Persistent is the durable variant of the TTL cache contract, backed
// by a single serialized blob per store. The cache is an optimization,
// not a source of truth: every storage fault is logged and degraded to
// a miss (reads) or a no-op (writes), never returned to callers.
type Persistent[T any] struct {
	store BlobStore
	name  string
}

// NewPersistent creates a durable TTL cache saved under the given store name.
func NewPersistent[T any](store BlobStore, name string) *Persistent[T] {
	return &Persistent[T]{store: store, name: name}
}

// Get returns the value for key and its remaining TTL. Expired entries
// are removed from the blob best-effort.
func (c *Persistent[T]) Get(ctx context.Context, key string) (T, time.Duration, bool) {
	var zero T

	blob, ok := c.load(ctx)
	if !ok {
		return zero, 0, false
	}

	entry, ok := blob.Entries[key]
	if !ok {
		return zero, 0, false
	}

	age := time.Now().UnixMilli() - entry.Timestamp
	if age > entry.TTL {
		delete(blob.Entries, key)
		c.save(ctx, blob)
		return zero, 0, false
	}

	remaining := time.Duration(entry.TTL-age) * time.Millisecond
	return entry.Data, remaining, true
}

// Set stores data under key for ttl. Best-effort: a failed save is
// logged and swallowed.
func (c *Persistent[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	blob, ok := c.load(ctx)
	if !ok {
		blob = persistedBlob[T]{Version: blobFormatVersion, Entries: map[string]persistedEntry[T]{}}
	}

	blob.Entries[key] = persistedEntry[T]{
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		TTL:       ttl.Milliseconds(),
	}
	c.save(ctx, blob)
}

// Cleanup drops every expired entry from the blob. Idempotent.
func (c *Persistent[T]) Cleanup(ctx context.Context) {
	blob, ok := c.load(ctx)
	if !ok {
		return
	}

	now := time.Now().UnixMilli()
	changed := false
	for k, e := range blob.Entries {
		if now-e.Timestamp > e.TTL {
			delete(blob.Entries, k)
			changed = true
		}
	}
	if changed {
		c.save(ctx, blob)
	}
}

// Clear removes the whole store blob.
func (c *Persistent[T]) Clear(ctx context.Context) {
	if err := c.store.Delete(ctx, c.name); err != nil {
		logging.L(ctx).Warn("persistent cache clear failed",
			zap.String("store", c.name),
			zap.Error(err),
		)
	}
}

// load reads and decodes the store blob. A missing blob, a storage
// fault, or a corrupt/mismatched payload all read as an empty cache.
func (c *Persistent[T]) load(ctx context.Context) (persistedBlob[T], bool) {
	raw, err := c.store.Load(ctx, c.name)
	if err == ErrBlobNotFound {
		return persistedBlob[T]{}, false
	}
	if err != nil {
		logging.L(ctx).Warn("persistent cache load failed, treating as empty",
			zap.String("store", c.name),
			zap.Error(err),
		)
		return persistedBlob[T]{}, false
	}

	var blob persistedBlob[T]
	if err := json.Unmarshal(raw, &blob); err != nil {
		logging.L(ctx).Warn("persistent cache blob corrupt, treating as empty",
			zap.String("store", c.name),
			zap.Error(err),
		)
		return persistedBlob[T]{}, false
	}
	if blob.Version != blobFormatVersion || blob.Entries == nil {
		return persistedBlob[T]{}, false
	}
	return blob, true
}

func (c *Persistent[T]) save(ctx context.Context, blob persistedBlob[T]) {
	blob.Version = blobFormatVersion
	raw, err := json.Marshal(blob)
	if err != nil {
		logging.L(ctx).Warn("persistent cache marshal failed",
			zap.String("store", c.name),
			zap.Error(err),
		)
		return
	}
	if err := c.store.Save(ctx, c.name, raw); err != nil {
		logging.L(ctx).Warn("persistent cache save failed",
			zap.String("store", c.name),
			zap.Error(err),
		)
	}
}
