package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody bounds how much of an error response the client will decode.
const maxErrorBody = 64 << 10

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string

	// RetryAfter is set from the Retry-After header on 429 responses.
	RetryAfter time.Duration
	// MediaSize is the total size advertised by a 416 response, or -1.
	MediaSize int64
}

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("api error: %d", e.Status)
	default:
		return "api error"
	}
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsRateLimited reports whether err is an API error with status 429.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// decodeError builds an APIError from a non-2xx response. HEAD responses and
// non-JSON bodies fall back to the status line.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{
		Status:     resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		MediaSize:  parseUnsatisfiedSize(resp.Header.Get("Content-Range")),
	}
	var body ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.ErrorCode = body.ErrorCode
		apiErr.Message = body.Error
		return apiErr
	}
	apiErr.Message = "api error: " + resp.Status
	return apiErr
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parseUnsatisfiedSize reads N from "bytes */N".
func parseUnsatisfiedSize(v string) int64 {
	rest, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes */")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
