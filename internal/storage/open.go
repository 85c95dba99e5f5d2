package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"shelf/internal/core"
	"shelf/pkg/storage"
)

// Open builds the backend selected by cfg, wrapped with metrics. The returned
// close function releases any resources the backend holds.
func Open(ctx context.Context, cfg core.StorageConfig) (storage.ObjectStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case core.StorageMemory:
		return Instrument(NewMemoryStore()), noop, nil

	case core.StorageLocal:
		// Ensure data directory is absolute for easier debugging.
		dataDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		store, err := NewLocalStore(ctx, dataDir)
		if err != nil {
			return nil, nil, err
		}
		return Instrument(store), store.Close, nil

	case core.StorageMinio:
		store, err := NewMinioStore(MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Region:    cfg.Minio.Region,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return Instrument(store), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
