package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediasrv/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

const mediaColumns = `m.id, m.title, m.filename, m.media_type, m.media_type_source, m.blob_id,
	m.view_count, m.last_viewed_at, m.created_at, m.updated_at, b.sha256, b.size_bytes`

const mediaContentColumns = mediaColumns + `, b.storage_backend, b.blob_key, b.created_at`

const mediaFrom = ` FROM media m JOIN blobs b ON b.id = m.blob_id`

// CreateMediaWithBlob inserts the blob when its digest is new and a media row
// pointing at the canonical blob, in one transaction. It returns the
// canonical blob, which differs from blob when the content already existed.
func (s *Store) CreateMediaWithBlob(ctx context.Context, blob *models.Blob, media *models.Media) (_ *models.Blob, err error) {
	if blob == nil {
		return nil, fmt.Errorf("blob is required")
	}
	if media == nil {
		return nil, fmt.Errorf("media is required")
	}
	if err := normalizeBlob(blob); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if media.CreatedAt.IsZero() {
		media.CreatedAt = now
	}
	if media.UpdatedAt.IsZero() {
		media.UpdatedAt = media.CreatedAt
	}
	if strings.TrimSpace(media.MediaTypeSource) == "" {
		media.MediaTypeSource = string(models.MediaTypeSourceUnknown)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if strings.TrimSpace(blob.ID) == "" {
		generated, genErr := GenerateBlobID(func(id string) (bool, error) {
			return idTaken(ctx, tx, "blobs", id)
		})
		if genErr != nil {
			err = genErr
			return nil, err
		}
		blob.ID = generated
	}
	if strings.TrimSpace(media.ID) == "" {
		generated, genErr := GenerateMediaID(func(id string) (bool, error) {
			return idTaken(ctx, tx, "media", id)
		})
		if genErr != nil {
			err = genErr
			return nil, err
		}
		media.ID = generated
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (id, sha256, size_bytes, storage_backend, blob_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.SHA256, blob.SizeBytes, blob.StorageBackend, blob.BlobKey, formatTime(blob.CreatedAt)); err != nil {
		return nil, err
	}

	canonical, err := scanBlob(tx.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs b WHERE b.sha256 = ?`, blob.SHA256))
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		err = fmt.Errorf("blob not found after upsert")
		return nil, err
	}

	media.BlobID = canonical.ID
	media.SHA256 = canonical.SHA256
	media.SizeBytes = canonical.SizeBytes
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO media (
			id, title, filename, media_type, media_type_source, blob_id,
			view_count, last_viewed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		media.ID,
		nullIfEmpty(strings.TrimSpace(media.Title)),
		nullIfEmpty(strings.TrimSpace(media.Filename)),
		nullIfEmpty(strings.TrimSpace(media.MediaType)),
		media.MediaTypeSource,
		media.BlobID,
		media.ViewCount,
		nullTime(media.LastViewedAt),
		formatTime(media.CreatedAt),
		formatTime(media.UpdatedAt),
	); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return canonical, nil
}

// GetMedia returns one media row joined with its blob size and digest, or nil when absent.
func (s *Store) GetMedia(ctx context.Context, id string) (*models.Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+mediaFrom+` WHERE m.id = ?`, id)
	return scanMedia(row)
}

// GetMediaContent returns a media row and the blob holding its bytes.
// Both are nil when the media does not exist.
func (s *Store) GetMediaContent(ctx context.Context, id string) (*models.Media, *models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaContentColumns+mediaFrom+` WHERE m.id = ?`, id)

	media, scan := mediaScanTargets()
	var blob models.Blob
	var blobCreatedAt string
	dest := append(scan.dest(), &blob.StorageBackend, &blob.BlobKey, &blobCreatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if err := scan.finish(media); err != nil {
		return nil, nil, err
	}

	createdAt, err := parseTime(blobCreatedAt)
	if err != nil {
		return nil, nil, err
	}
	blob.ID = media.BlobID
	blob.SHA256 = media.SHA256
	blob.SizeBytes = media.SizeBytes
	blob.CreatedAt = createdAt
	return media, &blob, nil
}

// ListMedia lists media newest first.
func (s *Store) ListMedia(ctx context.Context, filter ListFilter) ([]models.Media, error) {
	query := `SELECT ` + mediaColumns + mediaFrom
	args := []any{}
	if prefix := strings.TrimSpace(filter.MediaTypePrefix); prefix != "" {
		query += ` WHERE m.media_type LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(strings.ToLower(prefix)))
	}
	query += ` ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?`
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanMedia)
}

// DeleteMedia deletes one media row. The blob is left for GC.
func (s *Store) DeleteMedia(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM media WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// IncrementViewCount adds one view in a single UPDATE so concurrent callers
// never lose increments. It reports whether the media row exists.
func (s *Store) IncrementViewCount(ctx context.Context, id string, at time.Time) (bool, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE media SET view_count = view_count + 1, last_viewed_at = ? WHERE id = ?",
		formatTime(at), id,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// StoreInfo reports schema version and aggregate counts.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	info := &StoreInfo{}
	version, err := appliedVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	info.SchemaVersion = version

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(view_count), 0) FROM media",
	).Scan(&info.MediaCount, &info.TotalViews); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM blobs",
	).Scan(&info.BlobCount, &info.TotalBytes); err != nil {
		return nil, err
	}
	return info, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// mediaScan holds the nullable intermediates for one media row.
type mediaScan struct {
	media        *models.Media
	title        sql.NullString
	filename     sql.NullString
	mediaType    sql.NullString
	typeSource   sql.NullString
	lastViewedAt sql.NullString
	createdAt    string
	updatedAt    string
}

func mediaScanTargets() (*models.Media, *mediaScan) {
	media := &models.Media{}
	return media, &mediaScan{media: media}
}

func (s *mediaScan) dest() []any {
	return []any{
		&s.media.ID,
		&s.title,
		&s.filename,
		&s.mediaType,
		&s.typeSource,
		&s.media.BlobID,
		&s.media.ViewCount,
		&s.lastViewedAt,
		&s.createdAt,
		&s.updatedAt,
		&s.media.SHA256,
		&s.media.SizeBytes,
	}
}

func (s *mediaScan) finish(media *models.Media) error {
	media.Title = s.title.String
	media.Filename = s.filename.String
	media.MediaType = s.mediaType.String
	media.MediaTypeSource = s.typeSource.String

	parsedCreated, err := parseTime(s.createdAt)
	if err != nil {
		return err
	}
	parsedUpdated, err := parseTime(s.updatedAt)
	if err != nil {
		return err
	}
	media.CreatedAt = parsedCreated
	media.UpdatedAt = parsedUpdated

	if s.lastViewedAt.Valid {
		parsedViewed, err := parseTime(s.lastViewedAt.String)
		if err != nil {
			return err
		}
		media.LastViewedAt = &parsedViewed
	}
	return nil
}

func scanMedia(scanner rowScanner) (*models.Media, error) {
	media, scan := mediaScanTargets()
	if err := scanner.Scan(scan.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := scan.finish(media); err != nil {
		return nil, err
	}
	return media, nil
}
