// Package storage provides object storage for slideshow assets and outputs.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3-compatible backends.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Storage defines the interface for reading source assets and persisting
// composed outputs. Reads are streaming so large media never has to be
// buffered entirely in memory.
type Storage interface {
	// OpenRead opens the object stored under key for streaming reads.
	// The caller is responsible for closing the returned ReadCloser.
	// Returns ErrObjectNotFound if the key does not exist.
	OpenRead(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object under key with the given content type and
	// returns the backend's content identifier (an ETag) for the bytes
	// written.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (etag string, err error)
}
