package storage_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shelf/internal/core"
	"shelf/internal/storage"
	objstore "shelf/pkg/storage"
)

// backends returns a fresh instance of every ObjectStore that can run
// without external services.
func backends(t *testing.T) map[string]func(t *testing.T) objstore.ObjectStore {
	t.Helper()

	return map[string]func(t *testing.T) objstore.ObjectStore{
		"memory": func(t *testing.T) objstore.ObjectStore {
			return storage.NewMemoryStore()
		},
		"local": func(t *testing.T) objstore.ObjectStore {
			store, err := storage.NewLocalStore(context.Background(), t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		"instrumented": func(t *testing.T) objstore.ObjectStore {
			return storage.Instrument(storage.NewMemoryStore())
		},
	}
}

func putString(t *testing.T, store objstore.ObjectStore, key, body string, meta objstore.Metadata) objstore.ObjectInfo {
	t.Helper()
	info, err := store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), meta)
	require.NoError(t, err)
	return info
}

func readObject(t *testing.T, store objstore.ObjectStore, key string) (string, objstore.ObjectInfo) {
	t.Helper()
	obj, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	return string(data), obj.Info
}

func TestObjectStoreContract(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			t.Run("PutGetHead", func(t *testing.T) {
				store := open(t)
				meta := objstore.Metadata{
					ContentType:        "text/plain",
					CacheControl:       "no-cache",
					ContentDisposition: "inline",
					ContentEncoding:    "identity",
					ContentLanguage:    "en",
					Custom:             map[string]string{"author": "ops"},
				}
				info := putString(t, store, "docs/a.txt", "hello", meta)
				require.Equal(t, "docs/a.txt", info.Key)
				require.EqualValues(t, 5, info.Size)
				require.NotEmpty(t, info.ETag)

				body, got := readObject(t, store, "docs/a.txt")
				require.Equal(t, "hello", body)
				require.Equal(t, meta, got.Metadata())
				require.False(t, got.Uploaded.IsZero())

				head, err := store.Head(ctx, "docs/a.txt")
				require.NoError(t, err)
				require.Equal(t, got.ETag, head.ETag)
				require.EqualValues(t, 5, head.Size)
			})

			t.Run("Missing", func(t *testing.T) {
				store := open(t)
				_, err := store.Get(ctx, "nope")
				require.ErrorIs(t, err, objstore.ErrNotFound)
				_, err = store.Head(ctx, "nope")
				require.ErrorIs(t, err, objstore.ErrNotFound)
			})

			t.Run("Overwrite", func(t *testing.T) {
				store := open(t)
				first := putString(t, store, "a", "one", objstore.Metadata{})
				second := putString(t, store, "a", "two!", objstore.Metadata{ContentType: "text/x"})
				require.NotEqual(t, first.ETag, second.ETag)

				body, info := readObject(t, store, "a")
				require.Equal(t, "two!", body)
				require.Equal(t, "text/x", info.ContentType)
			})

			t.Run("SizeMismatch", func(t *testing.T) {
				store := open(t)
				_, err := store.Put(ctx, "a", strings.NewReader("abc"), 10, objstore.Metadata{})
				require.Error(t, err)
				_, err = store.Head(ctx, "a")
				require.ErrorIs(t, err, objstore.ErrNotFound)
			})

			t.Run("ListPaginates", func(t *testing.T) {
				store := open(t)
				for i := range 7 {
					putString(t, store, fmt.Sprintf("p/%d", i), "x", objstore.Metadata{})
				}
				putString(t, store, "q/0", "x", objstore.Metadata{})
				putString(t, store, "p", "x", objstore.Metadata{})

				page, err := store.List(ctx, objstore.ListOptions{Prefix: "p/", MaxKeys: 3})
				require.NoError(t, err)
				require.True(t, page.Truncated)
				require.Equal(t, "p/2", page.NextStartAfter)
				require.Len(t, page.Objects, 3)

				page, err = store.List(ctx, objstore.ListOptions{Prefix: "p/", StartAfter: "p/5", MaxKeys: 3})
				require.NoError(t, err)
				require.False(t, page.Truncated)
				require.Len(t, page.Objects, 1)
				require.Equal(t, "p/6", page.Objects[0].Key)

				all, err := objstore.ListAll(ctx, store, "", 2)
				require.NoError(t, err)
				require.Len(t, all, 9)
			})

			t.Run("ListPrefixIsLiteral", func(t *testing.T) {
				store := open(t)
				putString(t, store, "100%_done/a", "x", objstore.Metadata{})
				putString(t, store, "100xxdone/b", "x", objstore.Metadata{})

				all, err := objstore.ListAll(ctx, store, "100%_", 0)
				require.NoError(t, err)
				require.Len(t, all, 1)
				require.Equal(t, "100%_done/a", all[0].Key)
			})

			t.Run("DeleteIgnoresMissing", func(t *testing.T) {
				store := open(t)
				putString(t, store, "a", "1", objstore.Metadata{})
				putString(t, store, "b", "2", objstore.Metadata{})

				require.NoError(t, store.Delete(ctx, []string{"a", "missing"}))
				_, err := store.Head(ctx, "a")
				require.ErrorIs(t, err, objstore.ErrNotFound)
				_, err = store.Head(ctx, "b")
				require.NoError(t, err)
				require.NoError(t, store.Delete(ctx, nil))
			})

			t.Run("Copy", func(t *testing.T) {
				store := open(t)
				putString(t, store, "src", "payload", objstore.Metadata{ContentType: "text/plain"})

				require.NoError(t, objstore.Copy(ctx, store, "src", "dst"))
				body, info := readObject(t, store, "dst")
				require.Equal(t, "payload", body)
				require.Equal(t, "text/plain", info.ContentType)

				err := objstore.Copy(ctx, store, "missing", "dst2")
				require.ErrorIs(t, err, objstore.ErrNotFound)
			})

			t.Run("FolderMarker", func(t *testing.T) {
				store := open(t)
				putString(t, store, "empty/", "", objstore.Metadata{ContentType: "application/x-directory"})
				info, err := store.Head(ctx, "empty/")
				require.NoError(t, err)
				require.Zero(t, info.Size)
			})
		})
	}
}

func TestLocalStoreCollectsPayloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dataDir := t.TempDir()
	store, err := storage.NewLocalStore(ctx, dataDir)
	require.NoError(t, err)
	defer store.Close()

	info := putString(t, store, "a", "shared", objstore.Metadata{})
	require.NoError(t, store.Copy(ctx, "a", "b"))

	payload, err := storage.PayloadPath(dataDir, info.ETag)
	require.NoError(t, err)

	// Still referenced by b.
	require.NoError(t, store.Delete(ctx, []string{"a"}))
	require.FileExists(t, payload)

	// Replacing the last reference removes the payload.
	putString(t, store, "b", "different", objstore.Metadata{})
	require.NoFileExists(t, payload)
}

func TestLocalStoreReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dataDir := t.TempDir()

	store, err := storage.NewLocalStore(ctx, dataDir)
	require.NoError(t, err)
	putString(t, store, "keep.txt", "persisted", objstore.Metadata{Custom: map[string]string{"k": "v"}})
	require.NoError(t, store.Close())

	store, err = storage.NewLocalStore(ctx, dataDir)
	require.NoError(t, err)
	defer store.Close()

	body, info := readObject(t, store, "keep.txt")
	require.Equal(t, "persisted", body)
	require.Equal(t, map[string]string{"k": "v"}, info.Custom)
	require.FileExists(t, filepath.Join(dataDir, "metadata.sqlite"))
}

func TestMemoryStoreFaultsAndCounters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	putString(t, store, "a", "1", objstore.Metadata{})

	store.SetFault(func(ctx context.Context, op storage.Op, key string) error {
		if op == storage.OpGet && key == "a" {
			return os.ErrPermission
		}
		return nil
	})

	_, err := store.Get(ctx, "a")
	require.ErrorIs(t, err, os.ErrPermission)
	_, err = store.Head(ctx, "a")
	require.NoError(t, err)

	require.EqualValues(t, 1, store.Calls(storage.OpGet))
	require.EqualValues(t, 1, store.Calls(storage.OpPut))
	require.EqualValues(t, 1, store.Mutations())
	require.EqualValues(t, 3, store.TotalCalls())

	store.SetFault(nil)
	_, err = store.Get(ctx, "a")
	require.NoError(t, err)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, closeStore, err := storage.Open(ctx, core.StorageConfig{Backend: core.StorageMemory})
	require.NoError(t, err)
	require.NoError(t, closeStore())
	require.IsType(t, &storage.Instrumented{}, store)

	dataDir := t.TempDir()
	store, closeStore, err = storage.Open(ctx, core.StorageConfig{Backend: core.StorageLocal, DataDir: dataDir})
	require.NoError(t, err)
	putString(t, store, "x", "y", objstore.Metadata{})
	require.NoError(t, closeStore())

	_, _, err = storage.Open(ctx, core.StorageConfig{Backend: "floppy"})
	require.ErrorContains(t, err, "unknown storage backend")
}
