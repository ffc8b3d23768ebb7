package storage

import (
	"context"
	"crypto/md5" // #nosec G501 - used for content identifiers, not security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyOutsideRoot is returned when a key would escape the storage root.
var ErrKeyOutsideRoot = errors.New("storage: key escapes storage root")

// LocalStorage implements Storage on the local filesystem. It is intended
// for development and tests; production deployments use S3Storage.
type LocalStorage struct {
	rootDir string
}

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a LocalStorage rooted at rootDir.
// If rootDir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(rootDir string) (*LocalStorage, error) {
	if rootDir == "" {
		rootDir = filepath.Join(os.TempDir(), "slideshow")
	}

	if err := os.MkdirAll(rootDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &LocalStorage{rootDir: rootDir}, nil
}

// RootDir returns the storage root directory.
func (s *LocalStorage) RootDir() string {
	return s.rootDir
}

// OpenRead opens the object stored under key for streaming reads.
func (s *LocalStorage) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - path is confined to the storage root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}

	return f, nil
}

// Put writes the object under key and returns an MD5 content identifier,
// matching the shape S3 reports for simple uploads.
func (s *LocalStorage) Put(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 - path is confined to the storage root
	if err != nil {
		return "", fmt.Errorf("create object %s: %w", key, err)
	}

	sum := md5.New() // #nosec G401 - content identifier, not security
	if _, err := io.Copy(io.MultiWriter(f, sum), body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write object %s: %w", key, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close object %s: %w", key, err)
	}

	return hex.EncodeToString(sum.Sum(nil)), nil
}

// resolve maps a storage key to a filesystem path under the root,
// rejecting traversal outside of it.
func (s *LocalStorage) resolve(key string) (string, error) {
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if path != s.rootDir && !strings.HasPrefix(path, s.rootDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrKeyOutsideRoot, key)
	}
	return path, nil
}
