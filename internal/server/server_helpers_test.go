package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mediasrv/internal/api"
	"mediasrv/internal/blobstore"
	"mediasrv/internal/models"
	"mediasrv/internal/store"
)

const testCacheMaxAge = 31536000

type testEnv struct {
	srv   *Server
	store *store.Store
	blobs *blobstore.MemoryStore
}

func testOptions() Options {
	return Options{DBPath: "test.db", CacheMaxAge: testCacheMaxAge}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMediaTestServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return newMediaTestServerWithStore(t, st, st, opts)
}

// newMediaTestServerWithStore serves through mediaStore while st stays
// available for direct assertions.
func newMediaTestServerWithStore(t *testing.T, st *store.Store, mediaStore store.MediaStore, opts Options) *testEnv {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	srv := New("127.0.0.1:0", mediaStore, blobs, discardLogger(), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Close(ctx); err != nil {
			t.Errorf("close server: %v", err)
		}
		_ = st.Close()
	})
	return &testEnv{srv: srv, store: st, blobs: blobs}
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedMedia(t *testing.T, filename, mediaType string, content []byte) models.Media {
	t.Helper()
	media, err := e.srv.media.Upload(context.Background(), UploadInput{
		Title:             filename,
		Filename:          filename,
		DeclaredMediaType: mediaType,
	}, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("seed media: %v", err)
	}
	return media
}

func (e *testEnv) viewCount(t *testing.T, id string) int64 {
	t.Helper()
	e.srv.views.Wait()
	media, err := e.store.GetMedia(context.Background(), id)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if media == nil {
		t.Fatalf("media %s not found", id)
	}
	return media.ViewCount
}

func (e *testEnv) fetch(t *testing.T, method, path, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return e.serve(req)
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if content != nil {
		part, err := mw.CreateFormFile("content", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write content: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var errResp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, w.Body.String())
	}
	return errResp
}

func patternBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

var errCounterDown = errors.New("counter unavailable")

// failingCounterStore rejects every view increment.
type failingCounterStore struct {
	*store.Store
}

func (f failingCounterStore) IncrementViewCount(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, errCounterDown
}
