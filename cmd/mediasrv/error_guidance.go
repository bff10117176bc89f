package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"

	"github.com/dustin/go-humanize"

	"mediasrv/internal/api"
)

const hintPrefix = "hint: "

// codeHints maps numeric API error codes to a fixed remediation line.
var codeHints = map[int]string{
	1002: "raise media.max_upload_bytes on the server to accept larger files.",
	1004: "media ids look like md-xxxx; list them with: mediasrv media ls",
	1006: "the server restricts uploads by media type; see media.allowed_media_types in its config.",
	2002: "a concurrent gc removed identical bytes mid-upload; run the upload again.",
}

// formatCLIError renders err followed by any hints that may help the user
// recover from it.
func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}
	lines := []string{err.Error()}
	for _, hint := range errorHints(err) {
		line := hintPrefix + hint
		if !slices.Contains(lines, line) {
			lines = append(lines, line)
		}
	}
	return lines
}

func errorHints(err error) []string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErrorHints(apiErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return []string{"request timed out; check server health or increase MEDIASRV_HTTP_TIMEOUT."}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return []string{
			"ensure a mediasrv server is running at MEDIASRV_API_URL.",
			"start local server manually with: mediasrv srv",
		}
	}
	return nil
}

func apiErrorHints(apiErr *api.APIError) []string {
	var hints []string
	if hint, ok := codeHints[apiErr.ErrorCode]; ok {
		hints = append(hints, hint)
	}
	switch apiErr.Status {
	case http.StatusTooManyRequests:
		if apiErr.RetryAfter > 0 {
			hints = append(hints, fmt.Sprintf("server is busy; retry in %s.", apiErr.RetryAfter))
		} else {
			hints = append(hints, "server is busy; retry shortly or reduce concurrent uploads.")
		}
	case http.StatusRequestedRangeNotSatisfiable:
		if apiErr.MediaSize >= 0 {
			hints = append(hints, fmt.Sprintf("the media is %s (%d bytes); request a range that starts before the end.",
				humanize.IBytes(uint64(apiErr.MediaSize)), apiErr.MediaSize))
		} else {
			hints = append(hints, "the range starts past the end of the media; check its size with: mediasrv media show <id>")
		}
	}
	if apiErr.Code == "" {
		hints = append(hints, "verify MEDIASRV_API_URL points to a mediasrv server.")
	}
	if apiErr.Status >= http.StatusInternalServerError {
		hints = append(hints, "server returned an internal error; check server logs for details.")
	}
	return hints
}
