package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mediasrv/internal/format"
	"mediasrv/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeMediaList(items []models.Media) error {
	for _, media := range items {
		if err := writePlain("%s\n", formatMediaLine(media)); err != nil {
			return err
		}
	}
	return nil
}

func writeMediaDetail(media models.Media) error {
	lines := []string{
		fmt.Sprintf("id: %s", media.ID),
		fmt.Sprintf("content_type: %s", media.ContentType()),
		fmt.Sprintf("size: %s (%d bytes)", humanize.IBytes(uint64(max(media.SizeBytes, 0))), media.SizeBytes),
		fmt.Sprintf("views: %s", humanize.Comma(media.ViewCount)),
		fmt.Sprintf("blob_id: %s", media.BlobID),
		fmt.Sprintf("created_at: %s", formatTime(media.CreatedAt)),
	}
	if media.Title != "" {
		lines = append(lines, fmt.Sprintf("title: %s", media.Title))
	}
	if media.Filename != "" {
		lines = append(lines, fmt.Sprintf("filename: %s", media.Filename))
	}
	if media.MediaTypeSource != "" {
		lines = append(lines, fmt.Sprintf("media_type_source: %s", media.MediaTypeSource))
	}
	if media.SHA256 != "" {
		lines = append(lines, fmt.Sprintf("sha256: %s", media.SHA256))
	}
	if media.LastViewedAt != nil {
		lines = append(lines, fmt.Sprintf("last_viewed_at: %s (%s)", formatTime(*media.LastViewedAt), humanize.Time(*media.LastViewedAt)))
	}

	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatMediaLine(media models.Media) string {
	return fmt.Sprintf("%s [%s] %s %s views - %s",
		media.ID,
		media.Class(),
		humanize.IBytes(uint64(max(media.SizeBytes, 0))),
		humanize.Comma(media.ViewCount),
		media.DisplayName(),
	)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
