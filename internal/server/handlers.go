package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mediasrv/internal/api"
)

const maxJSONBodyBytes = 1 << 20

// writeError logs err and writes the JSON error envelope with the status its
// class dictates. Internal details never reach the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = internalError(errors.New("unspecified error"))
	}
	class, numericCode := classify(err)

	fields := []any{
		"status", class.status,
		"code", class.code,
		"error_code", numericCode,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	}
	if id := requestIDFromContext(r.Context()); id != "" {
		fields = append(fields, "request_id", id)
	}

	message := err.Error()
	switch {
	case class.status >= http.StatusInternalServerError:
		s.log().Error("request failed", fields...)
		message = "internal error"
	case class.noisy():
		s.log().Warn("request rejected", fields...)
	default:
		s.log().Debug("request rejected", fields...)
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(class.status)
		return
	}
	s.writeJSON(w, class.status, api.ErrorResponse{Error: message, Code: class.code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Debug("write json response", "status", status, "error", err)
	}
}

// decodeJSONBody decodes a bounded JSON body into dst. Unknown fields are
// rejected so a misspelled option cannot silently fall back to its default.
func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, classifyJSONError(err))
		return false
	}
	return true
}

func classifyJSONError(err error) error {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return tooLarge(fmt.Errorf("request body exceeds %d bytes", maxBytesErr.Limit))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return badRequestCode(errors.New("invalid JSON payload"), ErrCodeInvalidJSON)
	default:
		return badRequestCode(err, ErrCodeInvalidJSON)
	}
}

func (s *Server) mediaIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateMediaID(id) {
		s.writeError(w, r, badRequestCode(fmt.Errorf("invalid media id %q", id), ErrCodeInvalidID))
		return "", false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	switch {
	case err != nil:
		return 0, badRequestCode(fmt.Errorf("%s must be an integer", key), ErrCodeInvalidQuery)
	case parsed < 0:
		return 0, badRequestCode(fmt.Errorf("%s must be >= 0", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}
