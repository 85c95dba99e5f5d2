package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"shelf/pkg/storage"
)

var (
	//go:embed migrations
	migrationsFS embed.FS
)

const objectColumns = `key, hash, size, content_type, cache_control, content_disposition,
	content_encoding, content_language, custom_metadata, uploaded_at`

// LocalStore is a single-node ObjectStore: object metadata lives in SQLite
// and payloads in a content-addressed LocalFileStorage under the same data
// directory.
type LocalStore struct {
	db       *sql.DB
	payloads *LocalFileStorage
}

// initSchema applies all SQL files in the embedded migrations in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// NewLocalStore opens (creating if needed) a LocalStore rooted at dataDir.
func NewLocalStore(ctx context.Context, dataDir string) (*LocalStore, error) {
	if dataDir == "" {
		return nil, errors.New("DataDir must not be empty")
	}

	payloads := NewLocalFileStorage(dataDir)
	if err := os.MkdirAll(payloads.TempDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.sqlite")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &LocalStore{db: db, payloads: payloads}, nil
}

// Close closes the metadata database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// WithTransaction runs a function within a database transaction.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("error executing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (storage.ObjectInfo, string, error) {
	var (
		info        storage.ObjectInfo
		hashHex     string
		contentType sql.NullString
		cacheCtl    sql.NullString
		disposition sql.NullString
		encoding    sql.NullString
		language    sql.NullString
		custom      sql.NullString
	)

	err := row.Scan(&info.Key, &hashHex, &info.Size, &contentType, &cacheCtl, &disposition,
		&encoding, &language, &custom, &info.Uploaded)
	if err != nil {
		return storage.ObjectInfo{}, "", err
	}

	info.ETag = hashHex
	info.ContentType = contentType.String
	info.CacheControl = cacheCtl.String
	info.ContentDisposition = disposition.String
	info.ContentEncoding = encoding.String
	info.ContentLanguage = language.String
	info.Uploaded = info.Uploaded.UTC()

	if custom.Valid && custom.String != "" {
		if err := json.Unmarshal([]byte(custom.String), &info.Custom); err != nil {
			return storage.ObjectInfo{}, "", fmt.Errorf("decode custom metadata for %q: %w", info.Key, err)
		}
	}
	return info, hashHex, nil
}

func (s *LocalStore) lookup(ctx context.Context, key string) (storage.ObjectInfo, string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE key = ?`, key)
	info, hashHex, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ObjectInfo{}, "", storage.ErrNotFound
	}
	if err != nil {
		return storage.ObjectInfo{}, "", fmt.Errorf("lookup object metadata: %w", err)
	}
	return info, hashHex, nil
}

func (s *LocalStore) List(ctx context.Context, opts storage.ListOptions) (storage.ListPage, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = storage.DefaultPageSize
	}

	// substr avoids LIKE, whose wildcards may legitimately appear in keys.
	// Fetch one extra row to determine truncation.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		 WHERE substr(key, 1, ?) = ? AND key > ?
		 ORDER BY key LIMIT ?`,
		len([]rune(opts.Prefix)), opts.Prefix, opts.StartAfter, maxKeys+1,
	)
	if err != nil {
		return storage.ListPage{}, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var page storage.ListPage
	for rows.Next() {
		info, _, err := scanObject(rows)
		if err != nil {
			return storage.ListPage{}, fmt.Errorf("scan object: %w", err)
		}
		page.Objects = append(page.Objects, info)
	}
	if err := rows.Err(); err != nil {
		return storage.ListPage{}, fmt.Errorf("list objects: %w", err)
	}

	if len(page.Objects) > maxKeys {
		page.Objects = page.Objects[:maxKeys]
		page.Truncated = true
		page.NextStartAfter = page.Objects[maxKeys-1].Key
	}
	return page, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	info, hashHex, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	f, err := s.payloads.OpenPayload(hashHex)
	if err != nil {
		return nil, fmt.Errorf("open payload for %q: %w", key, err)
	}
	return &storage.Object{Info: info, Body: f}, nil
}

func (s *LocalStore) Head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	info, _, err := s.lookup(ctx, key)
	return info, err
}

// stage streams body into a temporary file while hashing it.
func (s *LocalStore) stage(body io.Reader) (tempPath string, size int64, hashHex string, err error) {
	f, err := os.CreateTemp(s.payloads.TempDir(), "upload-*")
	if err != nil {
		return "", 0, "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), body)
	if err != nil {
		_ = f.Close()
		return "", 0, "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, "", fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), size, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, meta storage.Metadata) (storage.ObjectInfo, error) {
	tempPath, written, hashHex, err := s.stage(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	if size >= 0 && written != size {
		_ = os.Remove(tempPath)
		return storage.ObjectInfo{}, fmt.Errorf("payload length %d does not match declared size %d", written, size)
	}

	if err := s.payloads.PutPayloadFromFile(hashHex, tempPath, written); err != nil {
		_ = os.Remove(tempPath)
		return storage.ObjectInfo{}, fmt.Errorf("store payload: %w", err)
	}

	var custom sql.NullString
	if len(meta.Custom) > 0 {
		encoded, err := json.Marshal(meta.Custom)
		if err != nil {
			return storage.ObjectInfo{}, fmt.Errorf("encode custom metadata: %w", err)
		}
		custom = sql.NullString{String: string(encoded), Valid: true}
	}

	now := time.Now().UTC()
	var replaced []string

	err = WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var previous string
		err := tx.QueryRowContext(ctx, `SELECT hash FROM objects WHERE key = ?`, key).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO objects(`+objectColumns+`)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
			 	hash=excluded.hash,
			 	size=excluded.size,
			 	content_type=excluded.content_type,
			 	cache_control=excluded.cache_control,
			 	content_disposition=excluded.content_disposition,
			 	content_encoding=excluded.content_encoding,
			 	content_language=excluded.content_language,
			 	custom_metadata=excluded.custom_metadata,
			 	uploaded_at=excluded.uploaded_at`,
			key, hashHex, written, nullable(meta.ContentType), nullable(meta.CacheControl),
			nullable(meta.ContentDisposition), nullable(meta.ContentEncoding),
			nullable(meta.ContentLanguage), custom, now,
		)
		if err != nil {
			return err
		}

		if previous != "" && previous != hashHex {
			replaced = append(replaced, previous)
		}
		return nil
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upsert object metadata: %w", err)
	}

	s.collectPayloads(ctx, replaced)

	return storage.ObjectInfo{
		Key:                key,
		Size:               written,
		Uploaded:           now,
		ETag:               hashHex,
		ContentType:        meta.ContentType,
		CacheControl:       meta.CacheControl,
		ContentDisposition: meta.ContentDisposition,
		ContentEncoding:    meta.ContentEncoding,
		ContentLanguage:    meta.ContentLanguage,
		Custom:             meta.Custom,
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	var hashes []string
	err := WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, key := range keys {
			var hashHex string
			err := tx.QueryRowContext(ctx, `DELETE FROM objects WHERE key = ? RETURNING hash`, key).Scan(&hashHex)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("delete %q: %w", key, err)
			}
			hashes = append(hashes, hashHex)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete object metadata: %w", err)
	}

	s.collectPayloads(ctx, hashes)
	return nil
}

// Copy duplicates the metadata row; the payload is shared by hash.
func (s *LocalStore) Copy(ctx context.Context, srcKey string, destKey string) error {
	var replaced []string

	err := WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var previous string
		err := tx.QueryRowContext(ctx, `SELECT hash FROM objects WHERE key = ?`, destKey).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO objects(`+objectColumns+`)
			 SELECT ?, hash, size, content_type, cache_control, content_disposition,
			 	content_encoding, content_language, custom_metadata, ?
			 FROM objects WHERE key = ?
			 ON CONFLICT(key) DO UPDATE SET
			 	hash=excluded.hash,
			 	size=excluded.size,
			 	content_type=excluded.content_type,
			 	cache_control=excluded.cache_control,
			 	content_disposition=excluded.content_disposition,
			 	content_encoding=excluded.content_encoding,
			 	content_language=excluded.content_language,
			 	custom_metadata=excluded.custom_metadata,
			 	uploaded_at=excluded.uploaded_at`,
			destKey, time.Now().UTC(), srcKey,
		)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return storage.ErrNotFound
		}

		if previous != "" {
			replaced = append(replaced, previous)
		}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("copy object metadata: %w", err)
	}

	s.collectPayloads(ctx, replaced)
	return nil
}

// collectPayloads removes payload files no longer referenced by any key.
// Failures only leak disk space, so they are logged rather than returned.
func (s *LocalStore) collectPayloads(ctx context.Context, hashes []string) {
	for _, hashHex := range hashes {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE hash = ?`, hashHex).Scan(&count); err != nil {
			slog.Warn("Failed to count payload references", "hash", hashHex, "err", err)
			continue
		}
		if count > 0 {
			continue
		}
		if err := s.payloads.DeletePayload(hashHex); err != nil {
			slog.Warn("Failed to remove unreferenced payload", "hash", hashHex, "err", err)
		}
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
