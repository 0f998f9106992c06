package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// faultyBlobStore fails every operation, simulating quota/corruption issues.
type faultyBlobStore struct{}

func (faultyBlobStore) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage disabled")
}
func (faultyBlobStore) Save(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}
func (faultyBlobStore) Delete(context.Context, string) error {
	return errors.New("storage disabled")
}

func TestPersistentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileBlobStore(t.TempDir())
	c := NewPersistent[string](store, "cv_cache_test")

	c.Set(ctx, "k1", "value", time.Minute)

	got, remaining, ok := c.Get(ctx, "k1")
	if !ok {
		t.Fatalf("expected durable hit")
	}
	if got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("remaining TTL out of range: %v", remaining)
	}
}

func TestPersistentTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewFileBlobStore(t.TempDir())
	c := NewPersistent[int](store, "cv_cache_test")

	c.Set(ctx, "k", 42, 15*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if _, _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestPersistentSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := NewPersistent[string](NewFileBlobStore(dir), "cv_cache_test")
	first.Set(ctx, "k", "durable", time.Minute)

	// A fresh wrapper over the same directory must see the entry.
	second := NewPersistent[string](NewFileBlobStore(dir), "cv_cache_test")
	got, _, ok := second.Get(ctx, "k")
	if !ok || got != "durable" {
		t.Fatalf("expected entry to survive reopen, got %q (ok=%v)", got, ok)
	}
}

func TestPersistentStorageFaultsAreMisses(t *testing.T) {
	ctx := context.Background()
	c := NewPersistent[string](faultyBlobStore{}, "cv_cache_test")

	// Writes and reads must degrade silently, never panic or error out.
	c.Set(ctx, "k", "v", time.Minute)
	if _, _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("faulty store must read as empty")
	}
	c.Cleanup(ctx)
	c.Clear(ctx)
}

func TestPersistentCorruptBlobIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewFileBlobStore(t.TempDir())
	if err := store.Save(ctx, "cv_cache_test", []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	c := NewPersistent[string](store, "cv_cache_test")
	if _, _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("corrupt blob must read as empty cache")
	}

	// The store must be writable again after corruption.
	c.Set(ctx, "k", "fresh", time.Minute)
	if got, _, ok := c.Get(ctx, "k"); !ok || got != "fresh" {
		t.Fatalf("expected recovery after corrupt blob, got %q (ok=%v)", got, ok)
	}
}

func TestPersistentCleanupIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewFileBlobStore(t.TempDir())
	c := NewPersistent[int](store, "cv_cache_test")

	c.Set(ctx, "short", 1, 10*time.Millisecond)
	c.Set(ctx, "long", 2, time.Minute)
	time.Sleep(20 * time.Millisecond)

	c.Cleanup(ctx)
	c.Cleanup(ctx)

	if _, _, ok := c.Get(ctx, "long"); !ok {
		t.Fatalf("cleanup removed a live entry")
	}
	if _, _, ok := c.Get(ctx, "short"); ok {
		t.Fatalf("cleanup left an expired entry")
	}
}
