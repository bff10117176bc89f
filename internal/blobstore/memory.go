package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory BlobStore for tests and ephemeral servers.
// It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ BlobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Backend reports the storage backend name.
func (m *MemoryStore) Backend() string {
	return BackendMemory
}

// Put reads all of r and stores it under its content address.
func (m *MemoryStore) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return zero, err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := casKeyFromDigest(digest)

	m.mu.Lock()
	if _, ok := m.blobs[key]; !ok {
		m.blobs[key] = data
	}
	m.mu.Unlock()

	return BlobPutResult{SHA256: digest, SizeBytes: int64(len(data)), BlobKey: key}, nil
}

// Open returns a reader over the full blob.
func (m *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := m.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// OpenRange returns a reader over length bytes starting at offset.
func (m *MemoryStore) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := validateRange(offset, length); err != nil {
		return nil, err
	}
	data, err := m.get(ctx, key)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	if offset >= size {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := offset + length
	if end > size {
		end = size
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

// Delete removes a blob. Missing keys are ignored.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func (m *MemoryStore) get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.blobs[clean]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", clean, ErrNotFound)
	}
	return data, nil
}
