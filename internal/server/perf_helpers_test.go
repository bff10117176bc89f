package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mediasrv/internal/blobstore"
	"mediasrv/internal/models"
	"mediasrv/internal/store"
)

type perfEnv struct {
	srv   *Server
	media []models.Media
}

func newPerfMediaEnv(tb testing.TB, seedCount int, blobSize int) *perfEnv {
	tb.Helper()

	dbPath := filepath.Join(tb.TempDir(), "perf.db")
	st, err := store.Open(dbPath)
	if err != nil {
		tb.Fatalf("open perf store: %v", err)
	}

	srv := New("127.0.0.1:0", st, blobstore.NewMemoryStore(), discardLogger(), testOptions())
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Close(ctx)
		_ = st.Close()
	})

	media, err := seedPerfMedia(context.Background(), srv.media, seedCount, blobSize)
	if err != nil {
		tb.Fatalf("seed perf media: %v", err)
	}
	return &perfEnv{srv: srv, media: media}
}

func seedPerfMedia(ctx context.Context, service *MediaService, count int, blobSize int) ([]models.Media, error) {
	mediaTypes := []string{"video/mp4", "audio/mpeg", "image/png"}
	extensions := []string{"mp4", "mp3", "png"}

	out := make([]models.Media, 0, count)
	for i := 0; i < count; i++ {
		media, err := service.Upload(ctx, UploadInput{
			Title:             fmt.Sprintf("Perf media %d", i),
			Filename:          fmt.Sprintf("perf-%d.%s", i, extensions[i%3]),
			DeclaredMediaType: mediaTypes[i%3],
		}, bytes.NewReader(perfContent(i, blobSize)))
		if err != nil {
			return nil, fmt.Errorf("upload %d: %w", i, err)
		}
		out = append(out, media)
	}
	return out, nil
}

// perfContent is unique per seed so every upload lands in its own blob.
func perfContent(seed int, size int) []byte {
	content := patternBytes(max(size, 8))
	binary.BigEndian.PutUint64(content[:8], uint64(seed))
	return content
}

func (e *perfEnv) fetch(id, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/media/"+id+"/content", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}
