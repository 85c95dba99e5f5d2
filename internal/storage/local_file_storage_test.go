package storage_test

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shelf/internal/storage"
)

func stageFile(t *testing.T, dir string, payload []byte) (string, string) {
	t.Helper()

	sum := sha256.Sum256(payload)
	tempPath := filepath.Join(dir, "staged-"+hex.EncodeToString(sum[:4]))
	require.NoError(t, os.WriteFile(tempPath, payload, 0o644))
	return tempPath, hex.EncodeToString(sum[:])
}

func TestLocalFileStoragePutAndOpen(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	engine := storage.NewLocalFileStorage(dataDir)

	payload := []byte("hello local storage")
	tempPath, hashHex := stageFile(t, t.TempDir(), payload)

	require.NoError(t, engine.PutPayloadFromFile(hashHex, tempPath, int64(len(payload))))

	// The payload lands in the content-addressed layout and the staged file
	// is consumed.
	objPath := filepath.Join(dataDir, "objects", hashHex[:2], hashHex)
	info, err := os.Stat(objPath)
	require.NoError(t, err, "expected payload file to exist")
	require.False(t, info.IsDir())
	require.NoFileExists(t, tempPath)
	require.True(t, engine.Exists(hashHex, int64(len(payload))))
	require.False(t, engine.Exists(hashHex, 1))

	f, err := engine.OpenPayload(hashHex)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLocalFileStorageDeduplicates(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	engine := storage.NewLocalFileStorage(dataDir)
	payload := []byte("same bytes")

	first, hashHex := stageFile(t, t.TempDir(), payload)
	require.NoError(t, engine.PutPayloadFromFile(hashHex, first, int64(len(payload))))

	second, _ := stageFile(t, t.TempDir(), payload)
	require.NoError(t, engine.PutPayloadFromFile(hashHex, second, int64(len(payload))))
	require.NoFileExists(t, second, "duplicate staged file should be discarded")
}

func TestLocalFileStorageInvalidHash(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir())

	_, err := storage.PayloadPath(t.TempDir(), "a")
	require.Error(t, err, "expected error for too-short hash")

	_, err = engine.OpenPayload("a")
	require.Error(t, err)
	require.Error(t, engine.DeletePayload("a"))
	require.False(t, engine.Exists("a", 0))
}

func TestLocalFileStorageDeleteMissingIsNoop(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir())
	require.NoError(t, engine.DeletePayload("deadbeef"))
}

func TestMoveFileCreatesDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	dest := filepath.Join(dir, "a", "b", "dest")
	require.NoError(t, storage.MoveFile(src, dest))
	require.NoFileExists(t, src)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, storage.CopyFile(src, dest))
	require.FileExists(t, src)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}
