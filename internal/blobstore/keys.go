package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

const casAlgorithmPrefix = "sha256"

func casKeyFromDigest(digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest)
}

func validateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid blob key")
	}
	return clean, nil
}

// spooled is a hashed local copy of an upload, used by remote backends that
// need the digest (and therefore the key) before the object is written.
type spooled struct {
	file   *os.File
	digest string
	size   int64
}

func spool(ctx context.Context, dir string, r io.Reader) (*spooled, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, "spool-*")
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	return &spooled{file: tmp, digest: hex.EncodeToString(h.Sum(nil)), size: n}, nil
}

func (s *spooled) key() string {
	return casKeyFromDigest(s.digest)
}

func (s *spooled) result() BlobPutResult {
	return BlobPutResult{SHA256: s.digest, SizeBytes: s.size, BlobKey: s.key()}
}

func (s *spooled) Close() error {
	name := s.file.Name()
	err := s.file.Close()
	_ = os.Remove(name)
	return err
}

// sectionReadCloser limits reads to a window of an underlying file.
type sectionReadCloser struct {
	*io.SectionReader
	closer io.Closer
}

func (s sectionReadCloser) Close() error {
	return s.closer.Close()
}
