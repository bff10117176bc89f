package server

import (
	"bufio"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"mediasrv/internal/api"
	"mediasrv/internal/models"
	"mediasrv/internal/store"
)

const sniffLength = 512

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploads, func() {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.opts.MultipartMaxMemory); err != nil {
			s.writeError(w, r, classifyMultipartError(err))
			return
		}

		file, header, err := r.FormFile("content")
		if err != nil {
			s.writeError(w, r, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired))
			return
		}
		defer file.Close()

		filename := firstNonEmpty(r.FormValue("filename"), header.Filename)
		buffered := bufio.NewReader(file)
		peek, _ := buffered.Peek(sniffLength)

		media, err := s.media.Upload(r.Context(), UploadInput{
			Title:             r.FormValue("title"),
			Filename:          filename,
			DeclaredMediaType: r.FormValue("media_type"),
			SniffedMediaType:  sniffMediaType(peek, filename),
		}, buffered)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, media)
	})
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.media.List(r.Context(), store.ListFilter{
		Limit:           limit,
		Offset:          offset,
		MediaTypePrefix: r.URL.Query().Get("type"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mediaIDOrBadRequest(w, r)
	if !ok {
		return
	}

	media, err := s.media.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, media)
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := s.mediaIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if err := s.media.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.MediaDeleteResponse{ID: id})
}

// sniffMediaType prefers the content signature, then the file extension.
func sniffMediaType(peek []byte, filename string) string {
	if len(peek) > 0 {
		if detected := http.DetectContentType(peek); detected != models.DefaultMediaType {
			return detected
		}
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return mime.TypeByExtension(ext)
	}
	return ""
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return tooLarge(fmt.Errorf("request body too large"))
	}
	return badRequestCode(err, ErrCodeInvalidMultipart)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
