// Package httprange parses single byte-range requests.
//
// The policy is permissive: anything that is not a well-formed
// "bytes=<start>-[<end>]" request degrades to a full-body response instead
// of an error. Only a start offset past the end of the resource is reported
// as unsatisfiable. Multi-range requests use their first segment unless
// strict mode is enabled, in which case they are unsatisfiable because
// multipart/byteranges responses are not produced.
package httprange

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const unitBytes = "bytes"

// Outcome classifies a parsed Range header.
type Outcome int

const (
	// OutcomeNone means serve the full body. Absent and malformed headers both land here.
	OutcomeNone Outcome = iota
	// OutcomePartial means serve Range with 206.
	OutcomePartial
	// OutcomeUnsatisfiable means respond 416.
	OutcomeUnsatisfiable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomePartial:
		return "partial"
	case OutcomeUnsatisfiable:
		return "unsatisfiable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Range is an end-inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by r.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a resource of size bytes.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("%s %d-%d/%d", unitBytes, r.Start, r.End, size)
}

// UnsatisfiedContentRange formats the Content-Range header value sent with 416.
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("%s */%d", unitBytes, size)
}

// Parse interprets header against a resource of size bytes.
func Parse(header string, size int64, strict bool) (Range, Outcome) {
	header = strings.TrimSpace(header)
	if header == "" || size < 0 {
		return Range{}, OutcomeNone
	}

	unit, set, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), unitBytes) {
		return Range{}, OutcomeNone
	}

	segments := strings.Split(set, ",")
	if len(segments) > 1 && strict {
		return Range{}, OutcomeUnsatisfiable
	}

	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(segments[0]), "-")
	if !ok {
		return Range{}, OutcomeNone
	}
	start, ok := parseOffset(startRaw)
	if !ok {
		return Range{}, OutcomeNone
	}

	end := size - 1
	if strings.TrimSpace(endRaw) != "" {
		parsed, ok := parseOffset(endRaw)
		if !ok || parsed < start {
			return Range{}, OutcomeNone
		}
		end = parsed
	}

	if start >= size {
		return Range{}, OutcomeUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return Range{Start: start, End: end}, OutcomePartial
}

// parseOffset accepts decimal digits only. Values past int64 saturate, so an
// oversized end clamps like any other end past the resource and an oversized
// start is unsatisfiable.
func parseOffset(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt64, true
	}
	if err != nil {
		return 0, false
	}
	return value, true
}
