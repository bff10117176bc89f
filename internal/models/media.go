package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMediaType is served when a media row has no stored media type.
const DefaultMediaType = "application/octet-stream"

// MediaTypeSource records how media_type was determined.
type MediaTypeSource string

const (
	MediaTypeSourceSniffed  MediaTypeSource = "sniffed"
	MediaTypeSourceDeclared MediaTypeSource = "declared"
	MediaTypeSourceUnknown  MediaTypeSource = "unknown"
)

var validMediaTypeSources = map[MediaTypeSource]struct{}{
	MediaTypeSourceSniffed:  {},
	MediaTypeSourceDeclared: {},
	MediaTypeSourceUnknown:  {},
}

// MediaClass is the coarse family of a media type.
type MediaClass string

const (
	MediaClassVideo MediaClass = "video"
	MediaClassImage MediaClass = "image"
	MediaClassAudio MediaClass = "audio"
	MediaClassOther MediaClass = "other"
)

// Media is one served media object. Bytes live in the referenced blob and
// never change; only ViewCount and LastViewedAt move after creation.
type Media struct {
	ID              string     `json:"id"`
	Title           string     `json:"title,omitempty"`
	Filename        string     `json:"filename,omitempty"`
	MediaType       string     `json:"media_type,omitempty"`
	MediaTypeSource string     `json:"media_type_source,omitempty"`
	BlobID          string     `json:"blob_id"`
	SHA256          string     `json:"sha256,omitempty"`
	SizeBytes       int64      `json:"size_bytes"`
	ViewCount       int64      `json:"view_count"`
	LastViewedAt    *time.Time `json:"last_viewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ContentType returns the media type to serve, falling back to DefaultMediaType.
func (m Media) ContentType() string {
	if mediaType := strings.TrimSpace(m.MediaType); mediaType != "" {
		return mediaType
	}
	return DefaultMediaType
}

// DisplayName returns the name used in Content-Disposition.
func (m Media) DisplayName() string {
	for _, candidate := range []string{m.Filename, m.Title, m.ID} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Class returns the media family of the stored media type.
func (m Media) Class() MediaClass {
	return ClassifyMediaType(m.MediaType)
}

// ClassifyMediaType maps a MIME type to its MediaClass.
func ClassifyMediaType(mediaType string) MediaClass {
	major, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mediaType)), "/")
	switch MediaClass(major) {
	case MediaClassVideo:
		return MediaClassVideo
	case MediaClassImage:
		return MediaClassImage
	case MediaClassAudio:
		return MediaClassAudio
	default:
		return MediaClassOther
	}
}

func ParseMediaTypeSource(raw string) (MediaTypeSource, error) {
	value := MediaTypeSource(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("media_type_source is required")
	}
	if _, ok := validMediaTypeSources[value]; !ok {
		return "", fmt.Errorf("invalid media_type_source: %s", value)
	}
	return value, nil
}
