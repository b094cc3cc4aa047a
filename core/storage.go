package core

import (
	"context"
	"io"
)

// FileStorage stores file blobs under opaque keys.
type FileStorage interface {
	// Name identifies the backend ("local", "s3"); it is persisted with each file.
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// RateLimiter tells whether one more attempt identified by key is allowed right now.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
