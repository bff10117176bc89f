package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediasrv/internal/blobstore"
	"mediasrv/internal/config"
	"mediasrv/internal/server"
	"mediasrv/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the mediasrv API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			bs, err := openBlobStore(ctx, cfg)
			if err != nil {
				return err
			}
			logger.Info("blob store ready", "backend", bs.Backend())

			srv := server.New(addr, st, bs, logger, serverOptions(cfg))
			return srv.ListenAndServe(ctx)
		},
	}
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		DBPath:             cfg.DBPath,
		MaxUploadBytes:     cfg.Media.MaxUploadBytes,
		MultipartMaxMemory: cfg.Media.MultipartMaxMemory,
		AllowedMediaTypes:  cfg.Media.AllowedMediaTypes,
		CacheMaxAge:        cfg.Media.CacheMaxAge,
		StrictRanges:       cfg.Media.StrictRanges,
		StreamRateBytes:    cfg.Media.StreamRateBytes,
		ViewWorkers:        cfg.Media.ViewWorkers,
		GCBatchSize:        cfg.Media.GCBatchSize,
	}
}

// openBlobStore builds the configured byte backend.
func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	remote := blobstore.RemoteConfig{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Storage.Prefix,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	}

	switch backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)); backend {
	case "", blobstore.BackendLocalCAS:
		return blobstore.NewLocalCAS(cfg.BlobRoot())
	case blobstore.BackendMinio:
		return blobstore.NewMinioStore(ctx, remote)
	case blobstore.BackendS3:
		return blobstore.NewS3Store(ctx, remote)
	case blobstore.BackendMemory:
		slog.Warn("memory blob store selected; content is lost on restart")
		return blobstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
