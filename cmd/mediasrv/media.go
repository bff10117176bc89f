package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediasrv/internal/api"
	"mediasrv/internal/config"
)

type mediaAddOptions struct {
	title     string
	filename  string
	mediaType string
}

func newMediaCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "media", Short: "Manage media"}
	cmd.AddCommand(
		newMediaAddCmd(cfg, jsonOutput),
		newMediaListCmd(cfg, jsonOutput),
		newMediaShowCmd(cfg, jsonOutput),
		newMediaGetCmd(cfg, jsonOutput),
		newMediaRemoveCmd(cfg, jsonOutput),
	)
	return cmd
}

func newMediaAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	opts := &mediaAddOptions{}
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Upload a media file",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			req := api.MediaUploadRequest{
				Title:     opts.title,
				Filename:  chooseFirst(opts.filename, filepath.Base(path)),
				MediaType: opts.mediaType,
			}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				media, err := client.UploadMedia(cmd.Context(), req, file)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(media)
				}
				return writeMediaDetail(media)
			})
		},
	}
	cmd.Flags().StringVar(&opts.title, "title", "", "media title")
	cmd.Flags().StringVar(&opts.filename, "filename", "", "filename override (default: base name of path)")
	cmd.Flags().StringVar(&opts.mediaType, "media-type", "", "declared media type (default: sniffed from content)")
	return cmd
}

func newMediaListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		limit     int
		offset    int
		mediaType string
	)
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List media, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}
			if value := strings.TrimSpace(mediaType); value != "" {
				query.Set("type", value)
			}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				items, err := client.ListMedia(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(items)
				}
				return writeMediaList(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "items to skip")
	cmd.Flags().StringVar(&mediaType, "type", "", "media type prefix filter (e.g. video/)")
	return cmd
}

func newMediaShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show media metadata",
		Args:  requireMediaID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				media, err := client.GetMedia(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(media)
				}
				return writeMediaDetail(media)
			})
		},
	}
}

func newMediaGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		outputPath  string
		rangeHeader string
	)
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download media bytes",
		Args:  requireMediaID,
		RunE: func(cmd *cobra.Command, args []string) error {
			rangeHeader = normalizeRangeFlag(rangeHeader)
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				var (
					dst    io.Writer = os.Stdout
					closer func() error
				)
				if outputPath != "" && outputPath != "-" {
					file, err := os.Create(outputPath)
					if err != nil {
						return err
					}
					dst = file
					closer = file.Close
				}

				info, err := client.FetchContent(cmd.Context(), args[0], rangeHeader, dst)
				if closer != nil {
					if closeErr := closer(); err == nil {
						err = closeErr
					}
				}
				if err != nil {
					return err
				}

				// Bytes went to stdout; keep the summary off it.
				if outputPath == "" || outputPath == "-" {
					return nil
				}
				if *jsonOutput {
					return writeJSON(info)
				}
				summary := fmt.Sprintf("wrote %s to %s (%d %s)", humanize.IBytes(uint64(max(info.Written, 0))), outputPath, info.Status, info.ContentType)
				if info.ContentRange != "" {
					summary += " range " + info.ContentRange
				}
				return writePlain("%s\n", summary)
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write bytes to file instead of stdout")
	cmd.Flags().StringVar(&rangeHeader, "range", "", "byte range, e.g. bytes=0-1023 or 0-1023")
	return cmd
}

func newMediaRemoveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete media metadata (bytes are reclaimed by gc)",
		Args:    requireMediaID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.DeleteMedia(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("deleted %s\n", resp.ID)
			})
		},
	}
}

// normalizeRangeFlag accepts "a-b" as shorthand for "bytes=a-b".
func normalizeRangeFlag(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.Contains(value, "=") {
		return value
	}
	return "bytes=" + value
}

func chooseFirst(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
