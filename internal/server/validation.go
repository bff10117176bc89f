package server

import (
	"fmt"
	"mime"
	"strings"

	"mediasrv/internal/store"
)

const (
	maxTitleLength    = 512
	maxFilenameLength = 255
)

func validateMediaID(id string) bool {
	return store.IsMediaID(id)
}

// normalizeMediaType lowercases a type/subtype pair and drops parameters.
func normalizeMediaType(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(value)
	if err != nil {
		return "", badRequestCode(fmt.Errorf("invalid media type %q", value), ErrCodeInvalidMediaType)
	}
	if !strings.Contains(parsed, "/") {
		return "", badRequestCode(fmt.Errorf("invalid media type %q", value), ErrCodeInvalidMediaType)
	}
	return strings.ToLower(parsed), nil
}

// normalizeMediaTypePrefix validates a list filter such as "video/" or "video/mp4".
func normalizeMediaTypePrefix(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", nil
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case strings.ContainsRune("/.+-_", r):
		default:
			return "", badRequestCode(fmt.Errorf("invalid media_type filter %q", value), ErrCodeInvalidQuery)
		}
	}
	return value, nil
}

func normalizeTitle(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) > maxTitleLength {
		return "", badRequestCode(fmt.Errorf("title must be at most %d bytes", maxTitleLength), ErrCodeInvalidArgument)
	}
	return value, nil
}

// normalizeFilename keeps only the final path element and strips control characters.
func normalizeFilename(value string) (string, error) {
	value = strings.TrimSpace(value)
	if idx := strings.LastIndexAny(value, `/\`); idx >= 0 {
		value = value[idx+1:]
	}
	value = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
	if len(value) > maxFilenameLength {
		return "", badRequestCode(fmt.Errorf("filename must be at most %d bytes", maxFilenameLength), ErrCodeInvalidArgument)
	}
	if value == "." || value == ".." {
		value = ""
	}
	return value, nil
}
