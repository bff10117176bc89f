package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediasrv/internal/config"
	"mediasrv/internal/store"
)

// migrateReport is the outcome of one migrate invocation.
type migrateReport struct {
	Applied []store.MigrationInfo `json:"applied"`
	store.MigrationStatus
}

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := readMigrationStatus(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			report := migrateReport{Applied: []store.MigrationInfo{}, MigrationStatus: before}

			if !inspect && len(before.Pending) > 0 {
				// Open applies pending migrations.
				st, err := store.Open(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if err := st.Close(); err != nil {
					return err
				}
				if report.MigrationStatus, err = readMigrationStatus(cmd.Context(), cfg.DBPath); err != nil {
					return err
				}
				report.Applied = before.Pending
			}

			if *jsonOutput {
				return writeJSON(report)
			}
			return writePlain("%s", renderMigrateReport(report))
		},
	}

	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status without applying")
	cmd.Flags().BoolVar(&inspect, "dry-run", false, "alias for --inspect")
	return cmd
}

func readMigrationStatus(ctx context.Context, path string) (store.MigrationStatus, error) {
	db, err := store.OpenRaw(path)
	if err != nil {
		return store.MigrationStatus{}, err
	}
	defer db.Close()
	status, err := store.MigrationPlan(ctx, db)
	if err != nil {
		return store.MigrationStatus{}, fmt.Errorf("inspect migrations: %w", err)
	}
	return *status, nil
}

func renderMigrateReport(r migrateReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema version %d of %d\n", r.CurrentVersion, r.AvailableVersion)
	for _, m := range r.Applied {
		fmt.Fprintf(&b, "  applied %d: %s\n", m.Version, m.Description)
	}
	for _, m := range r.Pending {
		fmt.Fprintf(&b, "  pending %d: %s\n", m.Version, m.Description)
	}
	if len(r.Applied) == 0 && len(r.Pending) == 0 {
		b.WriteString("up to date\n")
	}
	return b.String()
}
