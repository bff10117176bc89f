package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps blobs in an S3-compatible bucket through minio-go.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	prefix   string
	spoolDir string
}

var _ BlobStore = (*MinioStore)(nil)

// NewMinioStore connects to endpoint and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg RemoteConfig) (*MinioStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("storage endpoint is required for minio")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewMinioStoreWithClient(client, cfg), nil
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, cfg RemoteConfig) *MinioStore {
	return &MinioStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, spoolDir: cfg.SpoolDir}
}

// Backend reports the storage backend name.
func (s *MinioStore) Backend() string {
	return BackendMinio
}

// Put hashes r into a spool file and uploads it under its content address.
// Content already present in the bucket is not uploaded again.
func (s *MinioStore) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if s == nil || s.client == nil {
		return zero, errNotConfigured
	}
	sp, err := spool(ctx, s.spoolDir, r)
	if err != nil {
		return zero, err
	}
	defer sp.Close()

	key, err := objectKey(s.prefix, sp.key())
	if err != nil {
		return zero, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil {
		return sp.result(), nil
	} else if !isMinioNotFound(err) {
		return zero, err
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, sp.file, sp.size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return zero, err
	}
	return sp.result(), nil
}

// Open returns a reader for the full object.
func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.get(ctx, key, minio.GetObjectOptions{})
}

// OpenRange returns a reader over length bytes starting at offset.
func (s *MinioStore) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := validateRange(offset, length); err != nil {
		return nil, err
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, err
	}
	return s.get(ctx, key, opts)
}

// Delete removes an object. Missing objects are ignored.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errNotConfigured
	}
	objKey, err := objectKey(s.prefix, key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, objKey, minio.RemoveObjectOptions{}); err != nil && !isMinioNotFound(err) {
		return err
	}
	return nil
}

func (s *MinioStore) get(ctx context.Context, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, errNotConfigured
	}
	objKey, err := objectKey(s.prefix, key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objKey, opts)
	if err != nil {
		return nil, mapMinioError(key, err)
	}
	// GetObject is lazy; Stat issues the request so missing keys surface here.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioError(key, err)
	}
	return obj, nil
}

func isMinioNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	default:
		return false
	}
}

func mapMinioError(key string, err error) error {
	if isMinioNotFound(err) {
		return fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	return err
}
