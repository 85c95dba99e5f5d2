package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shelf/pkg/storage"
)

// MinioConfig describes how to reach an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStore is an ObjectStore backed by a single bucket on any
// S3-compatible service (MinIO, R2, AWS S3).
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates the S3 client for cfg. It does not contact the
// service; call EnsureBucket to verify connectivity.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket checks if the bucket exists, and creates it if it does not.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, opts storage.ListOptions) (storage.ListPage, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = storage.DefaultPageSize
	}

	// The client pages transparently; stop reading once one key past the
	// page has been seen so truncation can be reported.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make([]storage.ObjectInfo, 0, min(maxKeys, storage.DefaultPageSize))
	var page storage.ListPage

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		StartAfter: opts.StartAfter,
		Recursive:  true,
		MaxKeys:    maxKeys,
	}) {
		if obj.Err != nil {
			return storage.ListPage{}, fmt.Errorf("list objects: %w", obj.Err)
		}

		if len(objects) == maxKeys {
			page.Truncated = true
			page.NextStartAfter = objects[len(objects)-1].Key
			break
		}
		objects = append(objects, fromMinioInfo(obj))
	}

	page.Objects = objects
	return page, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err)
	}

	// GetObject is lazy; Stat forces the request so a missing key is
	// reported here rather than on first read.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, translateMinioError(err)
	}

	return &storage.Object{Info: fromMinioInfo(info), Body: obj}, nil
}

func (s *MinioStore) Head(ctx context.Context, key string) (storage.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translateMinioError(err)
	}
	return fromMinioInfo(info), nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, meta storage.Metadata) (storage.ObjectInfo, error) {
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:        contentType,
		CacheControl:       meta.CacheControl,
		ContentDisposition: meta.ContentDisposition,
		ContentEncoding:    meta.ContentEncoding,
		ContentLanguage:    meta.ContentLanguage,
		UserMetadata:       meta.Custom,
	})
	if err != nil {
		return storage.ObjectInfo{}, translateMinioError(err)
	}

	return storage.ObjectInfo{
		Key:                key,
		Size:               info.Size,
		Uploaded:           info.LastModified,
		ETag:               info.ETag,
		ContentType:        contentType,
		CacheControl:       meta.CacheControl,
		ContentDisposition: meta.ContentDisposition,
		ContentEncoding:    meta.ContentEncoding,
		ContentLanguage:    meta.ContentLanguage,
		Custom:             meta.Custom,
	}, nil
}

func (s *MinioStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if errors.Is(translateMinioError(rErr.Err), storage.ErrNotFound) {
			continue
		}
		errs = append(errs, fmt.Errorf("delete %q: %w", rErr.ObjectName, rErr.Err))
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Copy performs a server-side copy, keeping the source metadata.
func (s *MinioStore) Copy(ctx context.Context, srcKey string, destKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: destKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return translateMinioError(err)
	}
	return nil
}

func fromMinioInfo(info minio.ObjectInfo) storage.ObjectInfo {
	out := storage.ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		Uploaded:    info.LastModified.UTC(),
		ETag:        info.ETag,
		ContentType: info.ContentType,
	}

	if info.Metadata != nil {
		out.CacheControl = info.Metadata.Get("Cache-Control")
		out.ContentDisposition = info.Metadata.Get("Content-Disposition")
		out.ContentEncoding = info.Metadata.Get("Content-Encoding")
		out.ContentLanguage = info.Metadata.Get("Content-Language")
	}

	if len(info.UserMetadata) > 0 {
		out.Custom = make(map[string]string, len(info.UserMetadata))
		for k, v := range info.UserMetadata {
			out.Custom[strings.ToLower(strings.TrimPrefix(http.CanonicalHeaderKey(k), "X-Amz-Meta-"))] = v
		}
	}
	return out
}

func translateMinioError(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, resp.Key)
	}
	return err
}
