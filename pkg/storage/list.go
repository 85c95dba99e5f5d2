package storage

import (
	"context"
	"fmt"
)

// ListAll enumerates every object whose key starts with prefix, following
// continuation until the store reports no further pages.
func ListAll(ctx context.Context, store ObjectStore, prefix string, pageSize int) ([]ObjectInfo, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		all   []ObjectInfo
		after string
	)

	for {
		page, err := store.List(ctx, ListOptions{
			Prefix:     prefix,
			StartAfter: after,
			MaxKeys:    pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list %q after %q: %w", prefix, after, err)
		}

		all = append(all, page.Objects...)

		if !page.Truncated {
			return all, nil
		}

		// A store that claims truncation without advancing would loop forever.
		if page.NextStartAfter == "" || page.NextStartAfter == after {
			return nil, fmt.Errorf("list %q: store did not advance past %q", prefix, after)
		}
		after = page.NextStartAfter
	}
}

// Copy duplicates the object at srcKey to destKey, preserving its metadata.
// A server-side copy is used when the store supports one.
func Copy(ctx context.Context, store ObjectStore, srcKey string, destKey string) (err error) {
	if copier, ok := store.(Copier); ok {
		return copier.Copy(ctx, srcKey, destKey)
	}

	obj, err := store.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := obj.Body.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if _, err := store.Put(ctx, destKey, obj.Body, obj.Info.Size, obj.Info.Metadata()); err != nil {
		return err
	}
	return nil
}
