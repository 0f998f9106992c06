package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBlobNotFound marks a clean durable-store miss.
var ErrBlobNotFound = errors.New("cache: blob not found")

// BlobStore persists one opaque blob per named store. The persistent
// cache serializes its whole entry map into a single blob, so the store
// only needs whole-value load/save semantics.
// Implemented by Redis (prod) and a local file store (dev / no Redis).
type BlobStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

type StoreConfig struct {
	Backend string // "redis" or "file"
	Prefix  string
	Dir     string // file backend only
}

// NewBlobStore selects the durable backend. Anything other than "redis"
// falls back to the file store.
func NewBlobStore(cfg StoreConfig, redisClient *redis.Client) BlobStore {
	switch cfg.Backend {
	case "redis":
		return NewRedisBlobStore(redisClient, cfg.Prefix)
	default:
		return NewFileBlobStore(cfg.Dir)
	}
}

// RedisBlobStore keeps each store blob under a single prefixed key.
type RedisBlobStore struct {
	client *redis.Client
	prefix string
}

func NewRedisBlobStore(client *redis.Client, prefix string) *RedisBlobStore {
	return &RedisBlobStore{client: client, prefix: prefix}
}

// key builds the final Redis key with prefix.
func (s *RedisBlobStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// Load retrieves a store blob. On Redis error it returns the error so
// the caller can log and treat it as a miss.
func (s *RedisBlobStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	res, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err == redis.Nil {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return res, nil
}

func (s *RedisBlobStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	// No per-key TTL here: entries inside the blob carry their own TTLs
	// and are swept on read. The blob itself ages out after a day idle.
	if err := s.client.Set(ctx, s.key(name), data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisBlobStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Del(ctx, s.key(name)).Err()
}

// Ping checks if the Redis connection is healthy.
func (s *RedisBlobStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Ping(ctx).Err()
}

// FileBlobStore writes each store blob to <dir>/<name>.json. It exists
// so local development works without Redis; writes go through a temp
// file + rename so a crash never leaves a torn blob.
type FileBlobStore struct {
	dir string
}

func NewFileBlobStore(dir string) *FileBlobStore {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cvpolish-cache")
	}
	return &FileBlobStore{dir: dir}
}

func (s *FileBlobStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *FileBlobStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file read failed: %w", err)
	}
	return data, nil
}

func (s *FileBlobStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("file store mkdir failed: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("file store temp failed: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file write failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file close failed: %w", err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file rename failed: %w", err)
	}
	return nil
}

func (s *FileBlobStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
