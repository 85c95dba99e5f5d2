package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shelf/internal/storage"
)

func TestSeed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "a.png"), []byte("png"), 0o644))

	store := storage.NewMemoryStore()
	ctx := context.Background()

	n, err := Seed(ctx, store, dir, "imported")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"imported/docs/a.png", "imported/docs/empty/", "imported/readme.txt"}, store.Keys())

	info, err := store.Head(ctx, "imported/docs/a.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", info.ContentType)

	obj, err := store.Get(ctx, "imported/readme.txt")
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestRunRequiresDirectory(t *testing.T) {
	err := Run(context.Background(), []string{"-storage", "memory", "-env-file", filepath.Join(t.TempDir(), "missing.env")})
	require.ErrorContains(t, err, "usage")
}
