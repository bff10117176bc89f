package models

import "time"

// Blob is an immutable stored content object referenced by media rows.
type Blob struct {
	ID             string    `json:"id"`
	SHA256         string    `json:"sha256"`
	SizeBytes      int64     `json:"size_bytes"`
	StorageBackend string    `json:"storage_backend"`
	BlobKey        string    `json:"blob_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// ETag is the strong validator for the blob's bytes. Blobs never change,
// so the content digest identifies a representation for its lifetime.
func (b Blob) ETag() string {
	return `"` + b.SHA256 + `"`
}

// MatchesIfRange reports whether an If-Range value still names these bytes.
// Weak validators and dates never match.
func (b Blob) MatchesIfRange(ifRange string) bool {
	return ifRange == b.ETag()
}
