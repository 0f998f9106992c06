package cache

import (
	"context"
	"time"

	"cvpolish-core/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingBlobStore wraps a BlobStore with structured logging. Every
// durable read/write is logged with its outcome and latency so cache
// behaviour is observable without ever surfacing storage faults.
type LoggingBlobStore struct {
	inner BlobStore
}

// NewLoggingBlobStore returns a store that logs each durable operation.
func NewLoggingBlobStore(inner BlobStore) BlobStore {
	return &LoggingBlobStore{inner: inner}
}

func (s *LoggingBlobStore) Load(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	data, err := s.inner.Load(ctx, name)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := loggerFromContext(ctx)

	result := "hit"
	if err == ErrBlobNotFound {
		result = "miss"
	} else if err != nil {
		result = "error"
	}

	fields := []zap.Field{
		zap.String("cache_tier", "durable"),
		zap.String("store", name),
		zap.String("result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
		zap.Int("bytes", len(data)),
	}

	if result == "error" {
		logger.Warn("blob_store_load", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("blob_store_load", fields...)
	}

	return data, err
}

func (s *LoggingBlobStore) Save(ctx context.Context, name string, data []byte) error {
	start := time.Now()
	err := s.inner.Save(ctx, name, data)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := loggerFromContext(ctx)

	fields := []zap.Field{
		zap.String("cache_tier", "durable"),
		zap.String("store", name),
		zap.Float64("latency_ms", latencyMs),
		zap.Int("bytes", len(data)),
	}

	if err != nil {
		logger.Warn("blob_store_save", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("blob_store_save", fields...)
	}

	return err
}

func (s *LoggingBlobStore) Delete(ctx context.Context, name string) error {
	err := s.inner.Delete(ctx, name)

	logger := loggerFromContext(ctx)
	if err != nil {
		logger.Warn("blob_store_delete",
			zap.String("store", name),
			zap.Error(err),
		)
	} else {
		logger.Debug("blob_store_delete", zap.String("store", name))
	}
	return err
}

func loggerFromContext(ctx context.Context) *zap.Logger {
	if l := logging.FromContext(ctx); l != nil {
		return l
	}
	return logging.L(ctx)
}
