package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for keys that hold no object.
var ErrNotFound = errors.New("object not found")

// Object is a stored file opened for reading. Callers close Body.
type Object struct {
	Key         string
	ContentType string
	// Size is -1 when the backend does not report it.
	Size int64
	Body io.ReadCloser
}

// Store keeps uploaded product images.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	// URL returns the address a browser loads key from.
	URL(ctx context.Context, key string) (string, error)
}
