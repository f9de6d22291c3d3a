package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object or row does not exist.
var ErrNotFound = errors.New("not found")

// BlobStore is the object storage the pipeline reads source audio from and
// writes compressed audio to.
type BlobStore interface {
	// Download copies objectPath into the local file destPath.
	Download(ctx context.Context, objectPath, destPath string) error
	// Upload stores the local file at destPath with the given content type.
	Upload(ctx context.Context, localPath, destPath, contentType string) error
	// SignedURL returns a credential-free read URL valid for ttl.
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}
