package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestMediaContentFullFetch(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	content := patternBytes(1000)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatalf("body mismatch: got %d bytes", w.Body.Len())
	}

	wantHeaders := map[string]string{
		"Content-Type":        "video/mp4",
		"Content-Length":      "1000",
		"Accept-Ranges":       "bytes",
		"Cache-Control":       "public, max-age=31536000",
		"Content-Disposition": `inline; filename="clip.mp4"`,
		"ETag":                `"` + media.SHA256 + `"`,
	}
	for key, want := range wantHeaders {
		if got := w.Header().Get(key); got != want {
			t.Fatalf("header %s = %q, want %q", key, got, want)
		}
	}
	if got := w.Header().Get("Content-Range"); got != "" {
		t.Fatalf("unexpected Content-Range on full response: %q", got)
	}

	if got := env.viewCount(t, media.ID); got != 1 {
		t.Fatalf("expected view_count 1, got %d", got)
	}
	stored, err := env.store.GetMedia(context.Background(), media.ID)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	if stored.LastViewedAt == nil {
		t.Fatal("expected last_viewed_at to be set")
	}
}

func TestMediaContentRanges(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	content := patternBytes(1000)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	tests := []struct {
		name        string
		rangeHeader string
		wantRange   string
		wantStart   int
		wantEndExcl int
	}{
		{name: "closed range", rangeHeader: "bytes=100-199", wantRange: "bytes 100-199/1000", wantStart: 100, wantEndExcl: 200},
		{name: "open ended", rangeHeader: "bytes=900-", wantRange: "bytes 900-999/1000", wantStart: 900, wantEndExcl: 1000},
		{name: "end clamped", rangeHeader: "bytes=0-5000", wantRange: "bytes 0-999/1000", wantStart: 0, wantEndExcl: 1000},
		{name: "end past int64 clamped", rangeHeader: "bytes=0-99999999999999999999", wantRange: "bytes 0-999/1000", wantStart: 0, wantEndExcl: 1000},
		{name: "single byte", rangeHeader: "bytes=999-999", wantRange: "bytes 999-999/1000", wantStart: 999, wantEndExcl: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", tt.rangeHeader)
			if w.Code != http.StatusPartialContent {
				t.Fatalf("expected 206, got %d (%s)", w.Code, w.Body.String())
			}
			if got := w.Header().Get("Content-Range"); got != tt.wantRange {
				t.Fatalf("Content-Range = %q, want %q", got, tt.wantRange)
			}
			wantLen := tt.wantEndExcl - tt.wantStart
			if got := w.Header().Get("Content-Length"); got != strconv.Itoa(wantLen) {
				t.Fatalf("Content-Length = %q, want %d", got, wantLen)
			}
			if !bytes.Equal(w.Body.Bytes(), content[tt.wantStart:tt.wantEndExcl]) {
				t.Fatalf("range body mismatch for %s", tt.rangeHeader)
			}
			if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
				t.Fatalf("Accept-Ranges = %q", got)
			}
			if got := w.Header().Get("Cache-Control"); got == "" {
				t.Fatal("expected Cache-Control on partial response")
			}
			if got := w.Header().Get("Content-Disposition"); got != "" {
				t.Fatalf("unexpected Content-Disposition on partial response: %q", got)
			}
		})
	}

	if got := env.viewCount(t, media.ID); got != 0 {
		t.Fatalf("range requests must not count views, got %d", got)
	}
}

func TestMediaContentRepeatedRangesAreIdentical(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	media := env.seedMedia(t, "clip.mp4", "video/mp4", patternBytes(4096))

	first := env.fetch(t, http.MethodGet, "/media/"+media.ID, "bytes=1000-2047")
	second := env.fetch(t, http.MethodGet, "/media/"+media.ID, "bytes=1000-2047")
	if first.Code != http.StatusPartialContent || second.Code != http.StatusPartialContent {
		t.Fatalf("expected 206 twice, got %d and %d", first.Code, second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("repeated range fetches returned different bytes")
	}
}

func TestMediaContentMalformedRangeServesFullBody(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	content := patternBytes(1000)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	headers := []string{"bytes=abc", "items=0-10", "bytes=500-100", "bytes=-100", "bytes="}
	for _, header := range headers {
		t.Run(header, func(t *testing.T) {
			w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", header)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200 for %q, got %d", header, w.Code)
			}
			if !bytes.Equal(w.Body.Bytes(), content) {
				t.Fatalf("expected full body for %q", header)
			}
		})
	}

	if got := env.viewCount(t, media.ID); got != int64(len(headers)) {
		t.Fatalf("expected %d views, got %d", len(headers), got)
	}
}

func TestMediaContentUnsatisfiableRange(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	media := env.seedMedia(t, "clip.mp4", "video/mp4", patternBytes(1000))

	tests := []struct {
		method string
		header string
	}{
		{http.MethodGet, "bytes=1000-"},
		{http.MethodGet, "bytes=2000-3000"},
		{http.MethodGet, "bytes=99999999999999999999-"},
		{http.MethodHead, "bytes=1000-"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.header, func(t *testing.T) {
			w := env.fetch(t, tt.method, "/v1/media/"+media.ID+"/content", tt.header)
			if w.Code != http.StatusRequestedRangeNotSatisfiable {
				t.Fatalf("expected 416, got %d", w.Code)
			}
			if got := w.Header().Get("Content-Range"); got != "bytes */1000" {
				t.Fatalf("Content-Range = %q, want bytes */1000", got)
			}
			if tt.method == http.MethodHead {
				if w.Body.Len() != 0 {
					t.Fatalf("HEAD 416 must not carry a body, got %q", w.Body.String())
				}
				return
			}
			errResp := decodeErrorResponse(t, w)
			if errResp.ErrorCode != ErrCodeRangeNotSatisfiable {
				t.Fatalf("expected error_code %d, got %d", ErrCodeRangeNotSatisfiable, errResp.ErrorCode)
			}
		})
	}

	if got := env.viewCount(t, media.ID); got != 0 {
		t.Fatalf("unsatisfiable ranges must not count views, got %d", got)
	}
}

func TestMediaContentMultiRange(t *testing.T) {
	content := patternBytes(1000)

	t.Run("permissive uses first segment", func(t *testing.T) {
		env := newMediaTestServer(t, testOptions())
		media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

		w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "bytes=0-9,20-29")
		if w.Code != http.StatusPartialContent {
			t.Fatalf("expected 206, got %d", w.Code)
		}
		if got := w.Header().Get("Content-Range"); got != "bytes 0-9/1000" {
			t.Fatalf("Content-Range = %q", got)
		}
		if !bytes.Equal(w.Body.Bytes(), content[:10]) {
			t.Fatal("expected first segment bytes")
		}
	})

	t.Run("strict rejects", func(t *testing.T) {
		opts := testOptions()
		opts.StrictRanges = true
		env := newMediaTestServer(t, opts)
		media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

		w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "bytes=0-9,20-29")
		if w.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Fatalf("expected 416 in strict mode, got %d", w.Code)
		}
	})
}

func TestMediaContentHead(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	media := env.seedMedia(t, "clip.mp4", "video/mp4", patternBytes(1000))

	w := env.fetch(t, http.MethodHead, "/v1/media/"+media.ID+"/content", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("HEAD must not return a body, got %d bytes", w.Body.Len())
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q", got)
	}

	w = env.fetch(t, http.MethodHead, "/media/"+media.ID, "bytes=10-19")
	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 10-19/1000" {
		t.Fatalf("Content-Range = %q", got)
	}

	if got := env.viewCount(t, media.ID); got != 0 {
		t.Fatalf("HEAD must not count views, got %d", got)
	}
}

func TestMediaContentNotFound(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	media := env.seedMedia(t, "clip.mp4", "video/mp4", patternBytes(10))

	w := env.fetch(t, http.MethodGet, "/v1/media/md-zzzz/content", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.Error != "media not found" || errResp.ErrorCode != ErrCodeMediaNotFound {
		t.Fatalf("unexpected error response: %+v", errResp)
	}

	w = env.fetch(t, http.MethodGet, "/media/not-an-id", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
	if errResp := decodeErrorResponse(t, w); errResp.ErrorCode != ErrCodeInvalidID {
		t.Fatalf("expected error_code %d, got %d", ErrCodeInvalidID, errResp.ErrorCode)
	}

	if got := env.viewCount(t, media.ID); got != 0 {
		t.Fatalf("unknown ids must not touch other counters, got %d", got)
	}
}

func TestMediaContentConcurrentFullFetches(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	content := patternBytes(8192)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	const fetches = 24
	var g errgroup.Group
	for i := 0; i < fetches; i++ {
		g.Go(func() error {
			w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "")
			if w.Code != http.StatusOK {
				return fmt.Errorf("expected 200, got %d", w.Code)
			}
			if !bytes.Equal(w.Body.Bytes(), content) {
				return fmt.Errorf("body mismatch")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := env.viewCount(t, media.ID); got != fetches {
		t.Fatalf("expected %d views, got %d", fetches, got)
	}
}

func TestMediaContentDisjointRangesConcurrently(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	content := patternBytes(10 * 1024)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		start := i * 1024
		end := start + 1023
		g.Go(func() error {
			w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", fmt.Sprintf("bytes=%d-%d", start, end))
			if w.Code != http.StatusPartialContent {
				return fmt.Errorf("range %d-%d: expected 206, got %d", start, end, w.Code)
			}
			if !bytes.Equal(w.Body.Bytes(), content[start:end+1]) {
				return fmt.Errorf("range %d-%d: body mismatch", start, end)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestMediaContentCounterFailureStillServes(t *testing.T) {
	base := newMediaTestServer(t, testOptions())
	env := newMediaTestServerWithStore(t, base.store, failingCounterStore{Store: base.store}, testOptions())
	content := patternBytes(500)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite counter failure, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("body mismatch")
	}
	if got := env.viewCount(t, media.ID); got != 0 {
		t.Fatalf("expected view_count to stay 0, got %d", got)
	}
}

func TestMediaContentEmptyBlob(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	media := env.seedMedia(t, "empty.bin", "", nil)

	w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Length"); got != "0" {
		t.Fatalf("Content-Length = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	w = env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "bytes=0-")
	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416 for any range on empty blob, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes */0" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestMediaContentMissingBlobBytes(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	media := env.seedMedia(t, "clip.mp4", "video/mp4", patternBytes(100))

	blob, err := env.store.GetBlob(context.Background(), media.BlobID)
	if err != nil || blob == nil {
		t.Fatalf("get blob: %v", err)
	}
	if err := env.blobs.Delete(context.Background(), blob.BlobKey); err != nil {
		t.Fatalf("delete blob bytes: %v", err)
	}

	w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.Error != "internal error" || errResp.ErrorCode != ErrCodeStoreFailure {
		t.Fatalf("unexpected error response: %+v", errResp)
	}
	if got := env.viewCount(t, media.ID); got != 0 {
		t.Fatalf("failed fetch must not count a view, got %d", got)
	}
}

func TestMediaContentIfRange(t *testing.T) {
	env := newMediaTestServer(t, testOptions())
	content := patternBytes(1000)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)
	path := "/v1/media/" + media.ID + "/content"

	req := newRangeRequest(path, "bytes=0-9", `"stale"`)
	w := env.serve(req)
	if w.Code != http.StatusOK || w.Body.Len() != len(content) {
		t.Fatalf("stale If-Range should serve full body, got %d with %d bytes", w.Code, w.Body.Len())
	}

	req = newRangeRequest(path, "bytes=0-9", `"`+media.SHA256+`"`)
	w = env.serve(req)
	if w.Code != http.StatusPartialContent {
		t.Fatalf("matching If-Range should serve range, got %d", w.Code)
	}
}

func TestMediaContentThrottled(t *testing.T) {
	opts := testOptions()
	opts.StreamRateBytes = 1 << 20
	env := newMediaTestServer(t, opts)
	content := patternBytes(64 << 10)
	media := env.seedMedia(t, "clip.mp4", "video/mp4", content)

	w := env.fetch(t, http.MethodGet, "/v1/media/"+media.ID+"/content", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("throttled body mismatch")
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "", want: "inline"},
		{name: "clip.mp4", want: `inline; filename="clip.mp4"`},
		{name: `say "hi".mp4`, want: `inline; filename="say \"hi\".mp4"`},
		{name: "café.mp4", want: `inline; filename="caf_.mp4"; filename*=UTF-8''caf%C3%A9.mp4`},
		{name: "café: a=b@c {x}.mp4", want: `inline; filename="caf_: a=b@c {x}.mp4"; filename*=UTF-8''caf%C3%A9%3A%20a%3Db%40c%20%7Bx%7D.mp4`},
	}
	for _, tt := range tests {
		if got := contentDisposition(tt.name); got != tt.want {
			t.Fatalf("contentDisposition(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func newRangeRequest(path, rangeHeader, ifRange string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Range", rangeHeader)
	req.Header.Set("If-Range", ifRange)
	return req
}
