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

// ErrBlobReferenced is returned by DeleteBlob when a media row still points
// at the blob.
var ErrBlobReferenced = errors.New("blob is still referenced by media")

const blobColumns = "b.id, b.sha256, b.size_bytes, b.storage_backend, b.blob_key, b.created_at"

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	return s.blobWhere(ctx, "b.id = ?", id)
}

// GetBlobBySHA256 returns one blob by digest, or nil when absent.
func (s *Store) GetBlobBySHA256(ctx context.Context, sha string) (*models.Blob, error) {
	return s.blobWhere(ctx, "b.sha256 = ?", normalizeDigest(sha))
}

func (s *Store) blobWhere(ctx context.Context, cond string, arg any) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs b WHERE `+cond, arg)
	return scanBlob(row)
}

// ListUnreferencedBlobs returns blobs that no media row references, oldest
// first. limit <= 0 returns every candidate.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `SELECT ` + blobColumns + `
		FROM blobs b
		WHERE NOT EXISTS (SELECT 1 FROM media m WHERE m.blob_id = b.id)
		ORDER BY b.created_at ASC, b.id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanBlob)
}

// DeleteBlob deletes one blob row by id. The media foreign key protects
// referenced blobs; that case returns ErrBlobReferenced. Deleting a missing
// row is not an error.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete blob %s: %w", id, ErrBlobReferenced)
	}
	return err
}

func normalizeDigest(sha string) string {
	return strings.ToLower(strings.TrimSpace(sha))
}

func normalizeBlob(blob *models.Blob) error {
	blob.SHA256 = normalizeDigest(blob.SHA256)
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	blob.StorageBackend = strings.TrimSpace(blob.StorageBackend)
	switch {
	case blob.SHA256 == "":
		return errors.New("sha256 is required")
	case blob.BlobKey == "":
		return errors.New("blob_key is required")
	case blob.StorageBackend == "":
		return errors.New("storage_backend is required")
	case blob.SizeBytes < 0:
		return errors.New("size_bytes must be >= 0")
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}
	return nil
}

func scanBlob(scanner rowScanner) (*models.Blob, error) {
	var (
		blob      models.Blob
		createdAt string
	)
	err := scanner.Scan(&blob.ID, &blob.SHA256, &blob.SizeBytes, &blob.StorageBackend, &blob.BlobKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if blob.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("blob %s created_at: %w", blob.ID, err)
	}
	return &blob, nil
}
