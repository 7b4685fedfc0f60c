package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient stores objects as files below a root directory.
// Writes go to a temporary file in the target directory and are renamed
// into place, so readers never observe a partial object.
type LocalClient struct {
	root string
}

// NewLocalClient constructs a filesystem backend rooted at dir.
func NewLocalClient(dir string) (*LocalClient, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local storage directory is required")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalClient{root: root}, nil
}

// EnsureBucket creates the root directory if needed.
func (l *LocalClient) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(l.root, 0o755)
}

// Put writes the object to disk, replacing any previous content.
func (l *LocalClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// Get opens the object for reading.
func (l *LocalClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (l *LocalClient) Delete(ctx context.Context, key string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Bucket returns the root directory.
func (l *LocalClient) Bucket() string {
	return l.root
}

func (l *LocalClient) path(key string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(key))
	if cleaned == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, cleaned), nil
}
