package main

import (
	"context"
	"path/filepath"
	"testing"

	"mediasrv/internal/blobstore"
	"mediasrv/internal/config"
)

func TestOpenBlobStore(t *testing.T) {
	dir := t.TempDir()

	t.Run("local cas defaults next to db", func(t *testing.T) {
		cfg := config.Default()
		cfg.DBPath = filepath.Join(dir, "media.db")
		bs, err := openBlobStore(context.Background(), &cfg)
		if err != nil {
			t.Fatalf("open local cas: %v", err)
		}
		if bs.Backend() != blobstore.BackendLocalCAS {
			t.Fatalf("expected local_cas backend, got %s", bs.Backend())
		}
	})

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = "memory"
		bs, err := openBlobStore(context.Background(), &cfg)
		if err != nil {
			t.Fatalf("open memory store: %v", err)
		}
		if bs.Backend() != blobstore.BackendMemory {
			t.Fatalf("expected memory backend, got %s", bs.Backend())
		}
	})

	t.Run("minio requires bucket", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = "minio"
		cfg.Storage.Endpoint = "127.0.0.1:9000"
		if _, err := openBlobStore(context.Background(), &cfg); err == nil {
			t.Fatal("expected error without bucket")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = "tape"
		if _, err := openBlobStore(context.Background(), &cfg); err == nil {
			t.Fatal("expected error for unknown backend")
		}
	})
}

func TestServerOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = "/tmp/media.db"
	cfg.Media.StrictRanges = true
	cfg.Media.StreamRateBytes = 1024

	opts := serverOptions(&cfg)
	if opts.DBPath != cfg.DBPath || !opts.StrictRanges || opts.StreamRateBytes != 1024 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.CacheMaxAge != config.DefaultCacheMaxAge {
		t.Fatalf("expected default cache max age, got %d", opts.CacheMaxAge)
	}
}
