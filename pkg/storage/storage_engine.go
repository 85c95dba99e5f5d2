package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and Head when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// DefaultPageSize is the number of keys a single List call returns when the
// caller does not ask for a specific page size.
const DefaultPageSize = 1000

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Key      string
	Size     int64
	Uploaded time.Time
	ETag     string

	ContentType        string
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string

	// Custom holds user supplied metadata carried alongside the object.
	Custom map[string]string
}

// Metadata returns the portion of the info that is written back by Put.
func (o ObjectInfo) Metadata() Metadata {
	return Metadata{
		ContentType:        o.ContentType,
		CacheControl:       o.CacheControl,
		ContentDisposition: o.ContentDisposition,
		ContentEncoding:    o.ContentEncoding,
		ContentLanguage:    o.ContentLanguage,
		Custom:             o.Custom,
	}
}

// Metadata is the descriptive data stored with an object by Put.
type Metadata struct {
	ContentType        string
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	Custom             map[string]string
}

// Object is a stored object together with an open reader over its payload.
// Callers must close Body.
type Object struct {
	Info ObjectInfo
	Body io.ReadCloser
}

// ListOptions selects a page of keys in lexical order.
type ListOptions struct {
	// Prefix restricts the listing to keys starting with it.
	Prefix string
	// StartAfter resumes a listing after the given key.
	StartAfter string
	// MaxKeys bounds the page size. Zero means DefaultPageSize.
	MaxKeys int
}

// ListPage is one page of a listing.
type ListPage struct {
	Objects []ObjectInfo
	// Truncated is set when more keys follow; pass NextStartAfter as
	// ListOptions.StartAfter to fetch them.
	Truncated      bool
	NextStartAfter string
}

// ObjectStore is the flat key/value object storage the file manager is
// built on. Keys are opaque strings; any hierarchy is purely lexical.
type ObjectStore interface {
	// List returns one page of objects whose keys start with opts.Prefix,
	// in ascending key order.
	List(ctx context.Context, opts ListOptions) (ListPage, error)

	// Get opens the object stored at key. It returns ErrNotFound when the
	// key does not exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Head returns the metadata of the object stored at key, or ErrNotFound.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// Put stores body at key, replacing any existing object. size may be -1
	// when the length is not known in advance.
	Put(ctx context.Context, key string, body io.Reader, size int64, meta Metadata) (ObjectInfo, error)

	// Delete removes the given keys. Deleting a key that does not exist is
	// not an error.
	Delete(ctx context.Context, keys []string) error
}

// Copier is implemented by stores that can duplicate an object without
// streaming its payload through the caller.
type Copier interface {
	Copy(ctx context.Context, srcKey string, destKey string) error
}
