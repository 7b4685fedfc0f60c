package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/contactsbook/identity/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend   ObjectStorage
	urlPrefix string
}

// NewStorage constructs a Storage wrapper for the provided backend.
// urlPrefix is prepended to keys by URL.
func NewStorage(backend ObjectStorage, urlPrefix string) *Storage {
	return &Storage{backend: backend, urlPrefix: urlPrefix}
}

// New builds the backend selected in cfg and ensures its bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendLocal:
		backend, err = NewLocalClient(cfg.LocalDir)
	case config.StorageBackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.StorageBackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case config.StorageBackendS3:
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure %s bucket: %w", cfg.Backend, err)
	}
	return NewStorage(backend, cfg.URLPrefix), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// PutBytes uploads data under key, replacing any existing object.
func (s *Storage) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// ReadAll returns the full contents of the object at key.
func (s *Storage) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// URL returns the address recorded for key.
func (s *Storage) URL(key string) string {
	if s.urlPrefix == "" {
		return key
	}
	return strings.TrimRight(s.urlPrefix, "/") + "/" + strings.TrimLeft(key, "/")
}
