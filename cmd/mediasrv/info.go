package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediasrv/internal/api"
	"mediasrv/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server and store information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				info, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(info)
				}
				return writePlain(
					"db_path: %s\nstorage_backend: %s\nschema_version: %d\nmedia: %s\nblobs: %s\nstored: %s\nviews: %s\nstrict_ranges: %t\nview_recorder: %d pending, %s recorded, %d failed, %d dropped\n",
					info.DBPath,
					info.StorageBackend,
					info.SchemaVersion,
					humanize.Comma(info.MediaCount),
					humanize.Comma(info.BlobCount),
					humanize.IBytes(uint64(max(info.TotalBytes, 0))),
					humanize.Comma(info.TotalViews),
					info.StrictRanges,
					info.PendingViews, humanize.Comma(info.RecordedViews), info.FailedViews, info.DroppedViews,
				)
			})
		},
	}
}
