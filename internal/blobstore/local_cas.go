package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalCAS keeps blob bytes in a directory tree addressed by digest.
// Uploads are spooled into root/tmp and renamed into place, so readers
// never observe a partially written object.
type LocalCAS struct {
	root   string
	tmpDir string
}

var _ BlobStore = (*LocalCAS)(nil)

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("local blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	c := &LocalCAS{root: abs, tmpDir: filepath.Join(abs, "tmp")}
	if err := os.MkdirAll(c.tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob spool dir: %w", err)
	}
	return c, nil
}

func (c *LocalCAS) Backend() string {
	return BackendLocalCAS
}

// Put hashes r into a spool file and installs it under its digest key.
// Identical content is stored once.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	if c == nil {
		return BlobPutResult{}, errNotConfigured
	}
	sp, err := spool(ctx, c.tmpDir, r)
	if err != nil {
		return BlobPutResult{}, err
	}
	tmpPath := sp.file.Name()
	defer os.Remove(tmpPath)
	if err := sp.file.Close(); err != nil {
		return BlobPutResult{}, err
	}
	if err := c.install(tmpPath, sp.key()); err != nil {
		return BlobPutResult{}, err
	}
	return sp.result(), nil
}

func (c *LocalCAS) install(tmpPath, key string) error {
	dst, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	err = c.renameInto(tmpPath, dst)
	if errors.Is(err, fs.ErrNotExist) {
		// A concurrent Delete pruned the fan-out directory.
		err = c.renameInto(tmpPath, dst)
	}
	if err != nil {
		// A concurrent upload of the same bytes may have won the rename.
		if _, statErr := os.Stat(dst); statErr == nil {
			return nil
		}
		return fmt.Errorf("install blob %s: %w", key, err)
	}
	return nil
}

func (c *LocalCAS) renameInto(tmpPath, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}

func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return c.openFile(ctx, key)
}

// OpenRange returns a reader over length bytes starting at offset.
// Reads past the end of the file are truncated.
func (c *LocalCAS) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := validateRange(offset, length); err != nil {
		return nil, err
	}
	f, err := c.openFile(ctx, key)
	if err != nil {
		return nil, err
	}
	return sectionReadCloser{SectionReader: io.NewSectionReader(f, offset, length), closer: f}, nil
}

func (c *LocalCAS) openFile(ctx context.Context, key string) (*os.File, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes a blob object and any fan-out directories it leaves
// empty. Missing objects are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if c == nil {
		return errNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	c.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

// pruneEmptyDirs walks from dir towards root removing empty directories.
// os.Remove refuses non-empty directories, which ends the walk.
func (c *LocalCAS) pruneEmptyDirs(dir string) {
	for dir != c.root && strings.HasPrefix(dir, c.root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (c *LocalCAS) pathFromKey(key string) (string, error) {
	clean, err := validateKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.root, filepath.FromSlash(clean)), nil
}
