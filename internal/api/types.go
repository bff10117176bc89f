package api

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse is returned by GET /v1/info.
type InfoResponse struct {
	DBPath         string `json:"db_path"`
	StorageBackend string `json:"storage_backend"`
	SchemaVersion  int    `json:"schema_version"`
	MediaCount     int64  `json:"media_count"`
	BlobCount      int64  `json:"blob_count"`
	TotalBytes     int64  `json:"total_bytes"`
	TotalViews     int64  `json:"total_views"`
	StrictRanges   bool   `json:"strict_ranges"`
	// View recorder counters since server start.
	PendingViews  int64 `json:"pending_views"`
	RecordedViews int64 `json:"recorded_views"`
	FailedViews   int64 `json:"failed_views"`
	DroppedViews  int64 `json:"dropped_views"`
}

// MediaUploadRequest carries the optional metadata fields of a multipart upload.
type MediaUploadRequest struct {
	Title     string `json:"title,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// MediaDeleteResponse is returned by DELETE /v1/media/{id}.
type MediaDeleteResponse struct {
	ID string `json:"id"`
}

// BlobGCRequest is the payload for POST /v1/admin/gc-blobs.
type BlobGCRequest struct {
	BatchSize int  `json:"batch_size,omitempty"`
	DryRun    bool `json:"dry_run"`
}

// BlobGCResponse reports one blob GC run.
type BlobGCResponse struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	SkippedCount   int   `json:"skipped_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// ContentInfo describes the response headers of a content fetch.
type ContentInfo struct {
	Status        int    `json:"status"`
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	ContentRange  string `json:"content_range,omitempty"`
	ETag          string `json:"etag,omitempty"`
	Written       int64  `json:"written"`
}
