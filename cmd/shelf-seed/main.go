// Command shelf-seed uploads a local directory tree into the configured store,
// so a fresh deployment has something to browse.
//
//	shelf-seed [-config shelf.toml] [-storage local] DIR [PREFIX]
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"

	"shelf/internal/core"
	"shelf/internal/keypath"
	"shelf/internal/storage"
	objstore "shelf/pkg/storage"
)

// UploadFile uploads the file at localPath as key.
func UploadFile(ctx context.Context, store objstore.ObjectStore, localPath string, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := store.Put(ctx, key, f, st.Size(), objstore.Metadata{ContentType: contentType}); err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}

	slog.Info("Uploaded object", "key", key, "size", st.Size())
	return nil
}

// Seed uploads every regular file below dir under prefix and returns how many
// objects were written. Empty directories become folder markers.
func Seed(ctx context.Context, store objstore.ObjectStore, dir string, prefix string) (int, error) {
	prefix = keypath.AsFolder(prefix)
	count := 0

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		key := prefix + filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			entries, err := os.ReadDir(p)
			if err != nil {
				return err
			}
			if len(entries) > 0 {
				return nil
			}
			key = keypath.AsFolder(key)
			if _, err := store.Put(ctx, key, strings.NewReader(""), 0, objstore.Metadata{ContentType: "application/x-directory"}); err != nil {
				return fmt.Errorf("failed to create folder %q: %w", key, err)
			}
		case d.Type().IsRegular():
			if err := UploadFile(ctx, store, p, key); err != nil {
				return err
			}
		default:
			return nil
		}

		count++
		return nil
	})

	return count, err
}

func Run(ctx context.Context, args []string) error {
	cfg, rest, err := core.LoadArgs(args, os.LookupEnv)
	if err != nil {
		return err
	}

	handler, err := core.NewLogHandler(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(handler))

	if len(rest) < 1 || len(rest) > 2 {
		return errors.New("usage: shelf-seed [flags] DIR [PREFIX]")
	}

	dir := rest[0]
	prefix := ""
	if len(rest) == 2 {
		prefix = rest[1]
	}

	store, closeStore, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	defer closeStore()

	n, err := Seed(ctx, store, dir, prefix)
	if err != nil {
		return err
	}

	slog.Info("Seeding complete", "objects", n, "dir", dir, "prefix", prefix)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := Run(ctx, os.Args[1:]); err != nil {
		slog.Error("error seeding store", "err", err)
		os.Exit(1)
	}
}
