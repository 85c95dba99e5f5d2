package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shelf/pkg/storage"
)

// Op names a store operation, used for fault injection and call counting.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpHead   Op = "head"
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// FaultFunc is consulted before every operation on a MemoryStore. Returning a
// non-nil error makes the operation fail with that error.
type FaultFunc func(ctx context.Context, op Op, key string) error

type memoryObject struct {
	info storage.ObjectInfo
	data []byte
}

// MemoryStore is an in-process ObjectStore. It backs the "memory" storage
// mode and the test suites, which use its fault hook and call counters.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	fault   FaultFunc
	now     func() time.Time

	calls [5]atomic.Int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// SetFault installs fn as the fault hook. Passing nil removes it.
func (s *MemoryStore) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Calls returns how many times op has been invoked.
func (s *MemoryStore) Calls(op Op) int64 {
	return s.calls[opIndex(op)].Load()
}

// TotalCalls returns the number of operations of any kind.
func (s *MemoryStore) TotalCalls() int64 {
	var total int64
	for i := range s.calls {
		total += s.calls[i].Load()
	}
	return total
}

// Mutations returns the number of Put and Delete calls.
func (s *MemoryStore) Mutations() int64 {
	return s.Calls(OpPut) + s.Calls(OpDelete)
}

// Keys returns every stored key in lexical order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.objects))
}

func opIndex(op Op) int {
	switch op {
	case OpList:
		return 0
	case OpGet:
		return 1
	case OpHead:
		return 2
	case OpPut:
		return 3
	default:
		return 4
	}
}

func (s *MemoryStore) enter(ctx context.Context, op Op, key string) error {
	s.calls[opIndex(op)].Add(1)

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	fault := s.fault
	s.mu.RUnlock()

	if fault != nil {
		return fault(ctx, op, key)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (storage.ListPage, error) {
	if err := s.enter(ctx, OpList, opts.Prefix); err != nil {
		return storage.ListPage{}, err
	}

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = storage.DefaultPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if strings.HasPrefix(key, opts.Prefix) && key > opts.StartAfter {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	var page storage.ListPage
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
		page.Truncated = true
		page.NextStartAfter = keys[len(keys)-1]
	}

	page.Objects = make([]storage.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		page.Objects = append(page.Objects, cloneInfo(s.objects[key].info))
	}
	return page, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := s.enter(ctx, OpGet, key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}

	return &storage.Object{
		Info: cloneInfo(obj.info),
		Body: nopSeekCloser{bytes.NewReader(obj.data)},
	}, nil
}

func (s *MemoryStore) Head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	if err := s.enter(ctx, OpHead, key); err != nil {
		return storage.ObjectInfo{}, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return cloneInfo(obj.info), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, meta storage.Metadata) (storage.ObjectInfo, error) {
	if err := s.enter(ctx, OpPut, key); err != nil {
		return storage.ObjectInfo{}, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("read payload: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return storage.ObjectInfo{}, fmt.Errorf("payload length %d does not match declared size %d", len(data), size)
	}

	sum := md5.Sum(data)
	info := storage.ObjectInfo{
		Key:                key,
		Size:               int64(len(data)),
		Uploaded:           s.now().UTC(),
		ETag:               hex.EncodeToString(sum[:]),
		ContentType:        meta.ContentType,
		CacheControl:       meta.CacheControl,
		ContentDisposition: meta.ContentDisposition,
		ContentEncoding:    meta.ContentEncoding,
		ContentLanguage:    meta.ContentLanguage,
		Custom:             maps.Clone(meta.Custom),
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{info: info, data: data}
	s.mu.Unlock()

	return cloneInfo(info), nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys []string) error {
	if err := s.enter(ctx, OpDelete, strings.Join(keys, ",")); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// nopSeekCloser keeps the payload seekable so downloads can serve ranges.
type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }

func cloneInfo(info storage.ObjectInfo) storage.ObjectInfo {
	info.Custom = maps.Clone(info.Custom)
	return info
}
