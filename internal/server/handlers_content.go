package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mediasrv/internal/httprange"
)

const copyBufferSize = 32 << 10

// handleMediaContent serves media bytes, honoring single byte ranges.
// Only a full-body GET counts as a view.
func (s *Server) handleMediaContent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mediaIDOrBadRequest(w, r)
	if !ok {
		return
	}

	resolved, err := s.media.Resolve(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	size := resolved.Blob.SizeBytes
	etag := resolved.Blob.ETag()
	rangeHeader := r.Header.Get("Range")
	if ifRange := strings.TrimSpace(r.Header.Get("If-Range")); rangeHeader != "" && ifRange != "" && !resolved.Blob.MatchesIfRange(ifRange) {
		rangeHeader = ""
	}

	rng, outcome := httprange.Parse(rangeHeader, size, s.opts.StrictRanges)
	header := w.Header()
	header.Set("Accept-Ranges", "bytes")

	var (
		status         int
		offset, length int64
	)
	switch outcome {
	case httprange.OutcomeUnsatisfiable:
		header.Set("Content-Range", httprange.UnsatisfiedContentRange(size))
		s.writeError(w, r,
			rangeNotSatisfiable(fmt.Errorf("range %q not satisfiable for %d bytes", rangeHeader, size)))
		return
	case httprange.OutcomePartial:
		status = http.StatusPartialContent
		offset, length = rng.Start, rng.Length()
	case httprange.OutcomeNone:
		if rangeHeader != "" {
			s.log().Debug("ignoring malformed range", "media_id", id, "range", rangeHeader, "request_id", requestIDFromContext(r.Context()))
		}
		status = http.StatusOK
		offset, length = 0, size
	default:
		s.writeError(w, r, internalError(fmt.Errorf("unhandled range outcome %s", outcome)))
		return
	}

	var body io.ReadCloser
	if r.Method != http.MethodHead && length > 0 {
		body, err = s.media.OpenContent(r.Context(), resolved, offset, length)
		if err != nil {
			header.Del("Accept-Ranges")
			s.writeError(w, r, err)
			return
		}
		defer body.Close()
	}

	header.Set("Content-Type", resolved.Media.ContentType())
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	header.Set("Cache-Control", "public, max-age="+strconv.Itoa(s.opts.CacheMaxAge))
	header.Set("ETag", etag)
	if status == http.StatusPartialContent {
		header.Set("Content-Range", rng.ContentRange(size))
	} else {
		header.Set("Content-Disposition", contentDisposition(resolved.Media.DisplayName()))
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if status == http.StatusOK {
		s.media.RecordView(r.Context(), id)
	}
	if body == nil {
		return
	}

	dst := newThrottledWriter(r.Context(), w, s.opts.StreamRateBytes)
	written, err := io.CopyBuffer(dst, body, make([]byte, copyBufferSize))
	if err != nil {
		s.log().Debug("media stream aborted",
			"media_id", id,
			"written", written,
			"expected", length,
			"error", err,
			"request_id", requestIDFromContext(r.Context()),
		)
	}
}

// contentDisposition quotes name for an inline disposition and adds an
// RFC 5987 form when it is not plain ASCII.
func contentDisposition(name string) string {
	if name == "" {
		return "inline"
	}
	ascii := true
	var quoted strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case r > 0x7e:
			ascii = false
			quoted.WriteByte('_')
		case r == '"' || r == '\\':
			quoted.WriteByte('\\')
			quoted.WriteRune(r)
		default:
			quoted.WriteRune(r)
		}
	}
	value := `inline; filename="` + quoted.String() + `"`
	if !ascii {
		value += "; filename*=UTF-8''" + encodeExtValue(name)
	}
	return value
}

// encodeExtValue percent-encodes every byte of name outside the RFC 5987
// attr-char set. Control characters are dropped, as in the quoted fallback.
func encodeExtValue(name string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c < 0x20 || c == 0x7f:
		case isAttrChar(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
