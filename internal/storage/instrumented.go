package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"shelf/internal/metrics"
	"shelf/pkg/storage"
)

// Instrumented wraps an ObjectStore and records per-operation metrics.
type Instrumented struct {
	next storage.ObjectStore
}

// Instrument wraps store with metric collection.
func Instrument(store storage.ObjectStore) *Instrumented {
	return &Instrumented{next: store}
}

// Unwrap returns the wrapped store.
func (s *Instrumented) Unwrap() storage.ObjectStore {
	return s.next
}

func observe(op Op, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}

	metrics.StoreOperationsTotal.WithLabelValues(string(op), status).Inc()
	metrics.StoreOperationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
}

func (s *Instrumented) List(ctx context.Context, opts storage.ListOptions) (storage.ListPage, error) {
	start := time.Now()
	page, err := s.next.List(ctx, opts)
	observe(OpList, start, err)
	return page, err
}

func (s *Instrumented) Get(ctx context.Context, key string) (*storage.Object, error) {
	start := time.Now()
	obj, err := s.next.Get(ctx, key)
	observe(OpGet, start, err)
	return obj, err
}

func (s *Instrumented) Head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	start := time.Now()
	info, err := s.next.Head(ctx, key)
	observe(OpHead, start, err)
	return info, err
}

func (s *Instrumented) Put(ctx context.Context, key string, body io.Reader, size int64, meta storage.Metadata) (storage.ObjectInfo, error) {
	start := time.Now()
	info, err := s.next.Put(ctx, key, body, size, meta)
	observe(OpPut, start, err)
	return info, err
}

func (s *Instrumented) Delete(ctx context.Context, keys []string) error {
	start := time.Now()
	err := s.next.Delete(ctx, keys)
	observe(OpDelete, start, err)
	return err
}

// Copy forwards to the wrapped store's server-side copy, or falls back to
// get and put through the instrumented methods.
func (s *Instrumented) Copy(ctx context.Context, srcKey string, destKey string) error {
	copier, ok := s.next.(storage.Copier)
	if !ok {
		return storage.Copy(ctx, struct{ storage.ObjectStore }{s}, srcKey, destKey)
	}

	start := time.Now()
	err := copier.Copy(ctx, srcKey, destKey)
	observe("copy", start, err)
	return err
}
