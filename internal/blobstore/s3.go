package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps blobs in an AWS S3 bucket.
type S3Store struct {
	client   S3API
	bucket   string
	prefix   string
	spoolDir string
}

var _ BlobStore = (*S3Store)(nil)

// NewS3Store builds a client from the default AWS credential chain, with
// static keys and a custom endpoint applied when configured.
func NewS3Store(ctx context.Context, cfg RemoteConfig) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := strings.TrimSpace(cfg.Region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, cfg), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, cfg RemoteConfig) *S3Store {
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, spoolDir: cfg.SpoolDir}
}

// Backend reports the storage backend name.
func (s *S3Store) Backend() string {
	return BackendS3
}

// Put hashes r into a spool file and uploads it under its content address.
func (s *S3Store) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
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
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return sp.result(), nil
	}
	if !isS3NotFound(err) {
		return zero, err
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          sp.file,
		ContentLength: aws.Int64(sp.size),
		ContentType:   aws.String("application/octet-stream"),
	}); err != nil {
		return zero, err
	}
	return sp.result(), nil
}

// Open returns a reader for the full object.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.get(ctx, key, "")
}

// OpenRange returns a reader over length bytes starting at offset.
func (s *S3Store) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := validateRange(offset, length); err != nil {
		return nil, err
	}
	return s.get(ctx, key, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
}

// Delete removes an object. S3 treats missing keys as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errNotConfigured
	}
	objKey, err := objectKey(s.prefix, key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil && !isS3NotFound(err) {
		return err
	}
	return nil
}

func (s *S3Store) get(ctx context.Context, key, byteRange string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, errNotConfigured
	}
	objKey, err := objectKey(s.prefix, key)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	}
	if byteRange != "" {
		input.Range = aws.String(byteRange)
	}
	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return out.Body, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
