package store

import (
	"context"
	"time"

	"mediasrv/internal/models"
)

// MediaStore is the metadata persistence surface for media and blobs.
type MediaStore interface {
	CreateMediaWithBlob(ctx context.Context, blob *models.Blob, media *models.Media) (*models.Blob, error)
	GetMedia(ctx context.Context, id string) (*models.Media, error)
	GetMediaContent(ctx context.Context, id string) (*models.Media, *models.Blob, error)
	ListMedia(ctx context.Context, filter ListFilter) ([]models.Media, error)
	DeleteMedia(ctx context.Context, id string) (bool, error)
	IncrementViewCount(ctx context.Context, id string, at time.Time) (bool, error)

	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error)
	ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error

	StoreInfo(ctx context.Context) (*StoreInfo, error)
}

var _ MediaStore = (*Store)(nil)

// ListFilter narrows ListMedia results.
type ListFilter struct {
	Limit  int
	Offset int
	// MediaTypePrefix matches media_type by prefix, e.g. "video/" or "image/png".
	MediaTypePrefix string
}

// StoreInfo summarizes database contents.
type StoreInfo struct {
	SchemaVersion int   `json:"schema_version"`
	MediaCount    int64 `json:"media_count"`
	BlobCount     int64 `json:"blob_count"`
	TotalBytes    int64 `json:"total_bytes"`
	TotalViews    int64 `json:"total_views"`
}
