// Package move relocates files and folder subtrees inside an object store.
//
// Object stores have no rename primitive and no directories, so a move is a
// copy of every affected object followed by a single delete of the originals.
// The sequence is not atomic: between the copy and the delete both old and new
// keys exist, and concurrent moves over overlapping keys race with each other.
// The engine guarantees only that an original is never deleted unless its copy
// was confirmed.
package move

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"shelf/internal/keypath"
	"shelf/internal/metrics"
	"shelf/internal/notify"
	"shelf/pkg/storage"
)

var (
	// ErrInvalidArgument is returned when the key pair is rejected before
	// any store call is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when the source file does not exist.
	ErrNotFound = errors.New("source not found")
)

const (
	DefaultConcurrency = 8
	MaxConcurrency     = 64
	DefaultStepTimeout = 30 * time.Second
)

// Result describes a completed move.
type Result struct {
	// MovedCount is the number of objects relocated.
	MovedCount int `json:"movedCount"`
	// NewKey is the destination key, or the destination prefix for folders.
	NewKey string `json:"newKey"`
}

// PartialFailureError reports a folder move where some objects could not be
// copied. Objects listed in Failed were left untouched at their original
// keys; those in Succeeded were moved.
type PartialFailureError struct {
	Succeeded []string
	Failed    []string
	// Cause is the first copy error encountered.
	Cause error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("moved %d of %d objects: %v", len(e.Succeeded), len(e.Succeeded)+len(e.Failed), e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

// Config tunes an Engine.
type Config struct {
	// Concurrency bounds the number of copies in flight.
	Concurrency int
	// StepTimeout bounds every individual store call.
	StepTimeout time.Duration
	// PageSize is the listing page size used to enumerate folders.
	PageSize int
	// Events receives a notification after each successful move.
	Events notify.Publisher
}

// Engine performs moves against an ObjectStore. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	store storage.ObjectStore
	cfg   Config
}

// NewEngine returns an Engine over store.
func NewEngine(store storage.ObjectStore, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	cfg.Concurrency = min(cfg.Concurrency, MaxConcurrency)

	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = storage.DefaultPageSize
	}
	if cfg.Events == nil {
		cfg.Events = notify.Discard
	}

	return &Engine{store: store, cfg: cfg}
}

// Validate checks a key pair without touching the store and returns the
// destination key the move will use. A folder destination without a trailing
// slash has one appended.
func Validate(oldKey, newKey string) (string, error) {
	if oldKey == "" || newKey == "" {
		return "", fmt.Errorf("%w: oldKey and newKey are required", ErrInvalidArgument)
	}

	if keypath.IsFolder(oldKey) {
		newKey = keypath.AsFolder(newKey)
		if newKey == oldKey {
			return "", fmt.Errorf("%w: source and destination are the same", ErrInvalidArgument)
		}
		if keypath.Within(newKey, oldKey) {
			return "", fmt.Errorf("%w: cannot move folder %q into itself", ErrInvalidArgument, oldKey)
		}
		return newKey, nil
	}

	if newKey == oldKey {
		return "", fmt.Errorf("%w: source and destination are the same", ErrInvalidArgument)
	}
	if keypath.IsFolder(newKey) {
		return "", fmt.Errorf("%w: file destination %q must not end with %q", ErrInvalidArgument, newKey, keypath.Separator)
	}
	return newKey, nil
}

// Move relocates oldKey to newKey. A key ending in "/" moves the whole folder
// subtree beneath it.
func (e *Engine) Move(ctx context.Context, oldKey, newKey string) (*Result, error) {
	newKey, err := Validate(oldKey, newKey)
	if err != nil {
		return nil, err
	}

	kind := "file"
	if keypath.IsFolder(oldKey) {
		kind = "folder"
	}

	start := time.Now()
	var res *Result
	if kind == "folder" {
		res, err = e.moveFolder(ctx, oldKey, newKey)
	} else {
		res, err = e.moveFile(ctx, oldKey, newKey)
	}
	metrics.MoveDuration.WithLabelValues(kind, outcome(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Warn("Move failed", "old_key", oldKey, "new_key", newKey, "err", err)
		return nil, err
	}

	slog.Info("Move completed", "old_key", oldKey, "new_key", newKey, "moved", res.MovedCount)
	e.cfg.Events.Publish(notify.NewEvent(notify.KindMove, oldKey, newKey, res.MovedCount))
	return res, nil
}

func outcome(err error) string {
	var partial *PartialFailureError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &partial):
		return "partial"
	default:
		return "error"
	}
}

// step runs fn with the per-call deadline.
func (e *Engine) step(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	return fn(ctx)
}

func (e *Engine) moveFile(ctx context.Context, oldKey, newKey string) (*Result, error) {
	err := e.step(ctx, func(ctx context.Context) error {
		return storage.Copy(ctx, e.store, oldKey, newKey)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, oldKey)
	}
	if err != nil {
		metrics.MoveObjectsTotal.WithLabelValues("copy_failed").Inc()
		return nil, fmt.Errorf("copy %q to %q: %w", oldKey, newKey, err)
	}

	err = e.step(ctx, func(ctx context.Context) error {
		return e.store.Delete(ctx, []string{oldKey})
	})
	if err != nil {
		metrics.MoveObjectsTotal.WithLabelValues("delete_failed").Inc()
		return nil, fmt.Errorf("copied %q to %q but failed to delete the original: %w", oldKey, newKey, err)
	}

	metrics.MoveObjectsTotal.WithLabelValues("moved").Inc()
	return &Result{MovedCount: 1, NewKey: newKey}, nil
}

// stepLister applies the per-step deadline to each listing page.
type stepLister struct {
	storage.ObjectStore
	engine *Engine
}

func (l stepLister) List(ctx context.Context, opts storage.ListOptions) (storage.ListPage, error) {
	var page storage.ListPage
	err := l.engine.step(ctx, func(ctx context.Context) error {
		var err error
		page, err = l.ObjectStore.List(ctx, opts)
		return err
	})
	return page, err
}

// enumerate returns every key under prefix, page by page, falling back to a
// bare folder marker at the prefix itself.
func (e *Engine) enumerate(ctx context.Context, prefix string) ([]string, error) {
	objects, err := storage.ListAll(ctx, stepLister{ObjectStore: e.store, engine: e}, prefix, e.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}

	if len(keys) > 0 {
		return keys, nil
	}

	err = e.step(ctx, func(ctx context.Context) error {
		_, err := e.store.Head(ctx, prefix)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check folder marker %q: %w", prefix, err)
	}
	return []string{prefix}, nil
}

func (e *Engine) moveFolder(ctx context.Context, oldKey, newKey string) (*Result, error) {
	keys, err := e.enumerate(ctx, oldKey)
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		// Nothing to move; the folder never existed or is already gone.
		return &Result{MovedCount: 0, NewKey: newKey}, nil
	}

	copyErrs := make([]error, len(keys))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	for i, key := range keys {
		dest, _ := keypath.Rebase(key, oldKey, newKey)
		g.Go(func() error {
			copyErrs[i] = e.step(ctx, func(ctx context.Context) error {
				return storage.Copy(ctx, e.store, key, dest)
			})
			if copyErrs[i] != nil {
				slog.Warn("Copy failed during folder move", "key", key, "dest", dest, "err", copyErrs[i])
			}
			// Failures are tracked per object and must not cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	var (
		succeeded []string
		failed    []string
		firstErr  error
	)
	for i, key := range keys {
		if copyErrs[i] != nil {
			failed = append(failed, key)
			if firstErr == nil {
				firstErr = copyErrs[i]
			}
			continue
		}
		succeeded = append(succeeded, key)
	}

	metrics.MoveObjectsTotal.WithLabelValues("copy_failed").Add(float64(len(failed)))

	if len(succeeded) > 0 {
		err := e.step(ctx, func(ctx context.Context) error {
			return e.store.Delete(ctx, succeeded)
		})
		if err != nil {
			metrics.MoveObjectsTotal.WithLabelValues("delete_failed").Add(float64(len(succeeded)))
			return nil, fmt.Errorf("copied %d objects to %q but failed to delete the originals: %w", len(succeeded), newKey, err)
		}
		metrics.MoveObjectsTotal.WithLabelValues("moved").Add(float64(len(succeeded)))
	}

	if len(failed) > 0 {
		return nil, &PartialFailureError{
			Succeeded: succeeded,
			Failed:    failed,
			Cause:     firstErr,
		}
	}

	return &Result{MovedCount: len(succeeded), NewKey: newKey}, nil
}
