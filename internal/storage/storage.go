package storage

import (
	"context"
	"errors"
)

var ErrObjectNotFound = errors.New("object not found")

// Blobs stores generated documents by key.
type Blobs interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}
