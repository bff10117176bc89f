package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediasrv/internal/api"
	"mediasrv/internal/config"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Reclaim blobs no longer referenced by any media (dry run unless --apply)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.BlobGCRequest{BatchSize: batchSize, DryRun: !apply}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.GCBlobs(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if resp.DryRun {
					return writePlain("%d unreferenced blob(s), %s reclaimable (dry run; pass --apply to delete)\n",
						resp.CandidateCount, humanize.IBytes(uint64(max(resp.ReclaimedBytes, 0))))
				}
				return writePlain("deleted %d of %d blob(s), %d failed, %d skipped (re-referenced), %s reclaimed\n",
					resp.DeletedCount, resp.CandidateCount, resp.FailedCount, resp.SkippedCount,
					humanize.IBytes(uint64(max(resp.ReclaimedBytes, 0))))
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete candidates instead of listing them")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "blobs deleted per batch (default: server setting)")
	return cmd
}
