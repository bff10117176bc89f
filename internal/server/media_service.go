package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"mediasrv/internal/blobstore"
	"mediasrv/internal/models"
	"mediasrv/internal/store"
)

const defaultBlobGCBatchSize = 500

// MediaService orchestrates media workflows across metadata and blob storage.
type MediaService struct {
	store  store.MediaStore
	blobs  blobstore.BlobStore
	views  *ViewRecorder
	logger *slog.Logger

	allowedMediaTypes []string
	gcBatchSize       int

	lookups singleflight.Group
	keys    blobLocks
}

// UploadInput describes one media upload.
type UploadInput struct {
	Title             string
	Filename          string
	DeclaredMediaType string
	SniffedMediaType  string
}

// ResolvedMedia pairs a media row with the blob that holds its bytes.
type ResolvedMedia struct {
	Media models.Media
	Blob  models.Blob
}

// BlobGCResult reports one GC run result.
type BlobGCResult struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	SkippedCount   int   `json:"skipped_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// NewMediaService constructs a MediaService.
func NewMediaService(mediaStore store.MediaStore, blobs blobstore.BlobStore, views *ViewRecorder, logger *slog.Logger) *MediaService {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &MediaService{store: mediaStore, blobs: blobs, views: views, logger: logger}
	svc.ConfigurePolicy(nil, defaultBlobGCBatchSize)
	return svc
}

// ConfigurePolicy sets the allowed media types and GC batch size.
// Entries may be exact types or "family/*" wildcards.
func (s *MediaService) ConfigurePolicy(allowedMediaTypes []string, gcBatchSize int) {
	if s == nil {
		return
	}
	normalized := make([]string, 0, len(allowedMediaTypes))
	for _, raw := range allowedMediaTypes {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if family, ok := strings.CutSuffix(raw, "/*"); ok && family != "" {
			normalized = append(normalized, family+"/*")
			continue
		}
		mediaType, err := normalizeMediaType(raw)
		if err != nil || mediaType == "" {
			continue
		}
		normalized = append(normalized, mediaType)
	}
	s.allowedMediaTypes = normalized
	if gcBatchSize <= 0 {
		gcBatchSize = defaultBlobGCBatchSize
	}
	s.gcBatchSize = gcBatchSize
}

func (s *MediaService) configured() error {
	if s == nil || s.store == nil || s.blobs == nil {
		return internalError(fmt.Errorf("media service is not configured"))
	}
	return nil
}

// Upload streams content into the blob store and records a media row for it.
func (s *MediaService) Upload(ctx context.Context, in UploadInput, content io.Reader) (models.Media, error) {
	var zero models.Media
	if content == nil {
		return zero, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired)
	}
	if err := s.configured(); err != nil {
		return zero, err
	}

	title, err := normalizeTitle(in.Title)
	if err != nil {
		return zero, err
	}
	filename, err := normalizeFilename(in.Filename)
	if err != nil {
		return zero, err
	}
	mediaType, source, err := s.resolveMediaType(in)
	if err != nil {
		return zero, err
	}

	putResult, err := s.blobs.Put(ctx, content)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return zero, tooLarge(fmt.Errorf("upload exceeds size limit"))
		}
		return zero, storeFailure(fmt.Errorf("store blob: %w", err))
	}

	// Put may have deduped onto bytes a concurrent GC is about to delete.
	// Under the key lock GC cannot interleave, so bytes seen here stay put
	// until the row below references them.
	unlock := s.keys.lock(putResult.BlobKey)
	defer unlock()
	if err := s.confirmBlob(ctx, putResult); err != nil {
		return zero, err
	}

	now := time.Now().UTC()
	media := &models.Media{
		Title:           title,
		Filename:        filename,
		MediaType:       mediaType,
		MediaTypeSource: source,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = s.store.CreateMediaWithBlob(ctx, &models.Blob{
		SHA256:         putResult.SHA256,
		SizeBytes:      putResult.SizeBytes,
		StorageBackend: s.blobs.Backend(),
		BlobKey:        putResult.BlobKey,
	}, media)
	if err != nil {
		return zero, storeFailure(fmt.Errorf("create media: %w", err))
	}

	stored, err := s.store.GetMedia(ctx, media.ID)
	if err != nil {
		return zero, storeFailure(err)
	}
	if stored == nil {
		return zero, internalError(fmt.Errorf("media not found after create"))
	}
	s.logger.Info("media uploaded",
		"media_id", stored.ID,
		"blob_id", stored.BlobID,
		"size_bytes", stored.SizeBytes,
		"media_type", stored.MediaType,
	)
	return *stored, nil
}

// confirmBlob checks that the bytes behind put still exist. Remote backends
// only fetch a single byte.
func (s *MediaService) confirmBlob(ctx context.Context, put blobstore.BlobPutResult) error {
	var (
		rc  io.ReadCloser
		err error
	)
	if put.SizeBytes > 0 {
		rc, err = s.blobs.OpenRange(ctx, put.BlobKey, 0, 1)
	} else {
		rc, err = s.blobs.Open(ctx, put.BlobKey)
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return conflictCode(fmt.Errorf("blob %s was reclaimed during upload, retry", put.BlobKey), ErrCodeBlobReclaimed)
	}
	if err != nil {
		return storeFailure(fmt.Errorf("confirm blob: %w", err))
	}
	return rc.Close()
}

// Get returns one media row.
func (s *MediaService) Get(ctx context.Context, id string) (models.Media, error) {
	var zero models.Media
	if err := s.configured(); err != nil {
		return zero, err
	}
	if !validateMediaID(id) {
		return zero, badRequestCode(fmt.Errorf("invalid media id"), ErrCodeInvalidID)
	}
	media, err := s.store.GetMedia(ctx, id)
	if err != nil {
		return zero, storeFailure(err)
	}
	if media == nil {
		return zero, notFoundCode(fmt.Errorf("media not found"), ErrCodeMediaNotFound)
	}
	return *media, nil
}

// List returns media rows, newest first.
func (s *MediaService) List(ctx context.Context, filter store.ListFilter) ([]models.Media, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	prefix, err := normalizeMediaTypePrefix(filter.MediaTypePrefix)
	if err != nil {
		return nil, err
	}
	filter.MediaTypePrefix = prefix
	items, err := s.store.ListMedia(ctx, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	if items == nil {
		items = []models.Media{}
	}
	return items, nil
}

// Delete removes a media row. Its blob stays until GCBlobs reclaims it.
func (s *MediaService) Delete(ctx context.Context, id string) error {
	if err := s.configured(); err != nil {
		return err
	}
	if !validateMediaID(id) {
		return badRequestCode(fmt.Errorf("invalid media id"), ErrCodeInvalidID)
	}
	deleted, err := s.store.DeleteMedia(ctx, id)
	if err != nil {
		return storeFailure(err)
	}
	if !deleted {
		return notFoundCode(fmt.Errorf("media not found"), ErrCodeMediaNotFound)
	}
	s.lookups.Forget(id)
	s.logger.Info("media deleted", "media_id", id)
	return nil
}

// Resolve loads what is needed to serve a media object's bytes.
// Concurrent lookups for the same id share one query.
func (s *MediaService) Resolve(ctx context.Context, id string) (ResolvedMedia, error) {
	var zero ResolvedMedia
	if err := s.configured(); err != nil {
		return zero, err
	}
	// One caller disconnecting must not fail the others waiting on the same lookup.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := s.lookups.Do(id, func() (any, error) {
		media, blob, err := s.store.GetMediaContent(lookupCtx, id)
		if err != nil {
			return nil, storeFailure(fmt.Errorf("lookup media %s: %w", id, err))
		}
		if media == nil || blob == nil {
			return nil, notFoundCode(fmt.Errorf("media not found"), ErrCodeMediaNotFound)
		}
		return ResolvedMedia{Media: *media, Blob: *blob}, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(ResolvedMedia), nil
}

// OpenContent opens the blob bytes for [offset, offset+length).
// A full read goes through Open so backends can skip range handling.
func (s *MediaService) OpenContent(ctx context.Context, resolved ResolvedMedia, offset, length int64) (io.ReadCloser, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	var (
		rc  io.ReadCloser
		err error
	)
	if offset == 0 && length == resolved.Blob.SizeBytes {
		rc, err = s.blobs.Open(ctx, resolved.Blob.BlobKey)
	} else {
		rc, err = s.blobs.OpenRange(ctx, resolved.Blob.BlobKey, offset, length)
	}
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, storeFailure(fmt.Errorf("blob %s missing from %s: %w", resolved.Blob.ID, resolved.Blob.StorageBackend, err))
		}
		return nil, storeFailure(fmt.Errorf("open blob %s: %w", resolved.Blob.ID, err))
	}
	return rc, nil
}

// RecordView schedules a view increment without blocking the caller.
func (s *MediaService) RecordView(ctx context.Context, id string) {
	if s == nil || s.views == nil {
		return
	}
	s.views.Record(ctx, id)
}

// GCBlobs sweeps unreferenced blobs and optionally deletes them.
func (s *MediaService) GCBlobs(ctx context.Context, batchSize int, apply bool) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !apply}
	if err := s.configured(); err != nil {
		return result, err
	}
	if batchSize <= 0 {
		batchSize = s.gcBatchSize
		if batchSize <= 0 {
			batchSize = defaultBlobGCBatchSize
		}
	}

	if !apply {
		blobs, err := s.store.ListUnreferencedBlobs(ctx, 0)
		if err != nil {
			return result, storeFailure(err)
		}
		result.CandidateCount = len(blobs)
		for _, blob := range blobs {
			result.ReclaimedBytes += blob.SizeBytes
		}
		return result, nil
	}

	failed := map[string]struct{}{}
	for {
		blobs, err := s.store.ListUnreferencedBlobs(ctx, batchSize+len(failed))
		if err != nil {
			return result, storeFailure(err)
		}
		progressed := false
		for _, blob := range blobs {
			if _, ok := failed[blob.ID]; ok {
				continue
			}
			progressed = true
			result.CandidateCount++
			switch err := s.reclaim(ctx, blob); {
			case err == nil:
				result.DeletedCount++
				result.ReclaimedBytes += blob.SizeBytes
			case errors.Is(err, store.ErrBlobReferenced):
				failed[blob.ID] = struct{}{}
				s.logger.Debug("gc skip re-referenced blob", "blob_id", blob.ID)
				result.SkippedCount++
			case errors.Is(err, errBlobBytesDelete):
				s.logger.Warn("gc delete blob bytes", "blob_id", blob.ID, "blob_key", blob.BlobKey, "error", err)
				result.FailedCount++
			default:
				failed[blob.ID] = struct{}{}
				s.logger.Warn("gc delete blob row", "blob_id", blob.ID, "error", err)
				result.FailedCount++
			}
		}
		if !progressed {
			s.logger.Info("blob gc complete",
				"deleted", result.DeletedCount,
				"failed", result.FailedCount,
				"skipped", result.SkippedCount,
				"reclaimed_bytes", result.ReclaimedBytes,
			)
			return result, nil
		}
	}
}

var errBlobBytesDelete = errors.New("delete blob bytes")

// reclaim deletes one blob row and then its bytes while holding the blob key,
// so an upload deduping onto the same bytes either lands before the row
// delete (and the foreign key refuses it) or finds the bytes gone.
func (s *MediaService) reclaim(ctx context.Context, blob models.Blob) error {
	unlock := s.keys.lock(blob.BlobKey)
	defer unlock()
	if err := s.store.DeleteBlob(ctx, blob.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, blob.BlobKey); err != nil {
		// The row is gone, so only orphaned bytes remain.
		return fmt.Errorf("%w: %w", errBlobBytesDelete, err)
	}
	return nil
}

func (s *MediaService) resolveMediaType(in UploadInput) (string, string, error) {
	declared, err := normalizeMediaType(in.DeclaredMediaType)
	if err != nil {
		return "", "", err
	}
	sniffed, err := normalizeMediaType(in.SniffedMediaType)
	if err != nil {
		return "", "", err
	}

	finalMediaType := sniffed
	source := string(models.MediaTypeSourceSniffed)
	if declared != "" {
		finalMediaType = declared
		source = string(models.MediaTypeSourceDeclared)
	}
	if finalMediaType == "" {
		source = string(models.MediaTypeSourceUnknown)
	}

	if err := s.validateAllowedMediaType(finalMediaType); err != nil {
		return "", "", err
	}
	return finalMediaType, source, nil
}

func (s *MediaService) validateAllowedMediaType(mediaType string) error {
	if len(s.allowedMediaTypes) == 0 {
		return nil
	}
	if mediaType == "" {
		mediaType = models.DefaultMediaType
	}
	for _, allowed := range s.allowedMediaTypes {
		if family, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(mediaType, family+"/") {
				return nil
			}
			continue
		}
		if allowed == mediaType {
			return nil
		}
	}
	return badRequestCode(fmt.Errorf("media_type %s is not allowed", mediaType), ErrCodeMediaTypeNotAllowed)
}
