package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileStorage keeps object payloads on the local filesystem under a
// content-addressed layout rooted at dataDir. Payloads are addressed by their
// SHA-256 hexadecimal hash, with the first two characters used as a
// subdirectory prefix, so identical uploads share one file.
type LocalFileStorage struct {
	dataDir string
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir.
func NewLocalFileStorage(dataDir string) *LocalFileStorage {
	return &LocalFileStorage{dataDir: dataDir}
}

// PayloadPath computes the filesystem path of the payload identified by
// hashHex.
func PayloadPath(directory string, hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	subdir := hashHex[:2]
	return filepath.Join(directory, "objects", subdir, hashHex), nil
}

// TempDir is where uploads are staged while their hash is computed. It lives
// inside dataDir so the final rename stays on one filesystem.
func (s *LocalFileStorage) TempDir() string {
	return filepath.Join(s.dataDir, "tmp")
}

// Exists reports whether a payload with the given hash and size is present.
func (s *LocalFileStorage) Exists(hashHex string, size int64) bool {
	objPath, err := PayloadPath(s.dataDir, hashHex)
	if err != nil {
		return false
	}

	info, err := os.Stat(objPath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() == size
}

// PutPayloadFromFile moves the staged file at tempPath into place as the
// payload for hashHex. If an identical payload already exists the staged file
// is discarded instead.
func (s *LocalFileStorage) PutPayloadFromFile(hashHex string, tempPath string, size int64) error {
	objPath, err := PayloadPath(s.dataDir, hashHex)
	if err != nil {
		return err
	}

	if s.Exists(hashHex, size) {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	return MoveFile(tempPath, objPath)
}

// OpenPayload opens the payload identified by hashHex for reading.
func (s *LocalFileStorage) OpenPayload(hashHex string) (*os.File, error) {
	objPath, err := PayloadPath(s.dataDir, hashHex)
	if err != nil {
		return nil, err
	}
	return os.Open(objPath)
}

// DeletePayload removes the payload identified by hashHex. A missing payload
// is not an error.
func (s *LocalFileStorage) DeletePayload(hashHex string) error {
	objPath, err := PayloadPath(s.dataDir, hashHex)
	if err != nil {
		return err
	}

	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
