package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasrv/internal/store"
)

func TestReadMigrationStatusOnFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	status, err := readMigrationStatus(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CurrentVersion)
	assert.NotEmpty(t, status.Pending)

	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	status, err = readMigrationStatus(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, status.AvailableVersion, status.CurrentVersion)
	assert.Empty(t, status.Pending)
}

func TestRenderMigrateReport(t *testing.T) {
	report := migrateReport{
		Applied: []store.MigrationInfo{{Version: 3, Description: "media listing indexes"}},
		MigrationStatus: store.MigrationStatus{
			CurrentVersion:   3,
			AvailableVersion: 3,
			Pending:          []store.MigrationInfo{},
		},
	}
	assert.Equal(t, "schema version 3 of 3\n  applied 3: media listing indexes\n", renderMigrateReport(report))

	report.Applied = nil
	assert.Equal(t, "schema version 3 of 3\nup to date\n", renderMigrateReport(report))
}
