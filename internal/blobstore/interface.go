package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// Backend names persisted in blobs.storage_backend.
const (
	BackendLocalCAS = "local_cas"
	BackendMinio    = "minio"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// ErrNotFound is returned when a blob key has no stored object.
// Implementations return errors satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

var errNotConfigured = errors.New("blob store is not configured")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	SHA256    string
	SizeBytes int64
	BlobKey   string
}

// BlobStore is the byte-storage abstraction used by the media service.
// Stored objects are immutable; the same content always maps to the same key.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange returns length bytes starting at offset.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Backend() string
}

func validateRange(offset, length int64) error {
	if offset < 0 {
		return errors.New("range offset must be >= 0")
	}
	if length <= 0 {
		return errors.New("range length must be > 0")
	}
	return nil
}
