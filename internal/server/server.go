package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"mediasrv/internal/blobstore"
	"mediasrv/internal/store"
)

const (
	allowRemoteEnvKey      = "MEDIASRV_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 15 * time.Second
	uploadConcurrencyLimit = 4
	gcConcurrencyLimit     = 1

	defaultCacheMaxAge        = 31536000
	defaultMaxUploadBytes     = 2 << 30
	defaultMultipartMaxMemory = 8 << 20
	defaultViewWorkers        = 8
)

// Options configures upload, serving, and background behavior.
type Options struct {
	DBPath             string
	MaxUploadBytes     int64
	MultipartMaxMemory int64
	AllowedMediaTypes  []string
	CacheMaxAge        int
	StrictRanges       bool
	StreamRateBytes    int64
	ViewWorkers        int
	GCBatchSize        int
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = defaultMaxUploadBytes
	}
	if o.MultipartMaxMemory <= 0 {
		o.MultipartMaxMemory = defaultMultipartMaxMemory
	}
	if o.CacheMaxAge < 0 {
		o.CacheMaxAge = defaultCacheMaxAge
	}
	if o.ViewWorkers <= 0 {
		o.ViewWorkers = defaultViewWorkers
	}
	if o.GCBatchSize <= 0 {
		o.GCBatchSize = defaultBlobGCBatchSize
	}
	if o.StreamRateBytes < 0 {
		o.StreamRateBytes = 0
	}
	return o
}

// Server wraps HTTP handlers for the mediasrv API.
type Server struct {
	addr    string
	store   store.MediaStore
	blobs   blobstore.BlobStore
	media   *MediaService
	views   *ViewRecorder
	logger  *slog.Logger
	opts    Options
	uploads *limiter
	gcRuns  *limiter
}

// New creates a new server instance. A zero CacheMaxAge is honored as
// "max-age=0"; callers wanting the one-year default pass it explicitly.
func New(addr string, mediaStore store.MediaStore, blobs blobstore.BlobStore, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	views := NewViewRecorder(mediaStore, opts.ViewWorkers, logger)
	media := NewMediaService(mediaStore, blobs, views, logger)
	media.ConfigurePolicy(opts.AllowedMediaTypes, opts.GCBatchSize)

	return &Server{
		addr:    addr,
		store:   mediaStore,
		blobs:   blobs,
		media:   media,
		views:   views,
		logger:  logger,
		opts:    opts,
		uploads: newLimiter("upload", uploadConcurrencyLimit),
		gcRuns:  newLimiter("gc", gcConcurrencyLimit),
	}
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and drains pending view increments.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr, "storage_backend", s.blobs.Backend())
	// No read/write deadlines: uploads and streams may legitimately run for minutes.
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = s.Close(context.Background())
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := s.Close(shutdownCtx); err != nil {
		return err
	}
	return shutdownErr
}

// Close waits for in-flight view increments.
func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.views == nil {
		return nil
	}
	return s.views.Close(ctx)
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
