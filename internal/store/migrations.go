package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSchemaTooNew means the database was migrated by a newer build.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

type migration struct {
	version     int
	description string
	statements  []string
}

// MigrationStatus reports the current and available schema versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes one migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations must stay ordered by version with no gaps.
var migrations = []migration{
	{
		version:     1,
		description: "blobs and media tables",
		statements: []string{
			`CREATE TABLE blobs (
  id TEXT PRIMARY KEY,
  sha256 TEXT NOT NULL UNIQUE,
  size_bytes INTEGER NOT NULL CHECK (size_bytes >= 0),
  storage_backend TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  created_at TEXT NOT NULL
)`,
			`CREATE TABLE media (
  id TEXT PRIMARY KEY,
  title TEXT,
  filename TEXT,
  media_type TEXT,
  media_type_source TEXT NOT NULL DEFAULT 'unknown',
  blob_id TEXT NOT NULL REFERENCES blobs(id) ON DELETE RESTRICT,
  view_count INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0),
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
)`,
			`CREATE INDEX idx_media_blob_id ON media(blob_id)`,
		},
	},
	{
		version:     2,
		description: "last_viewed_at on media",
		statements: []string{
			`ALTER TABLE media ADD COLUMN last_viewed_at TEXT`,
		},
	},
	{
		version:     3,
		description: "listing and gc indexes",
		statements: []string{
			`CREATE INDEX idx_media_created_at_desc ON media(created_at DESC, id DESC)`,
			`CREATE INDEX idx_media_type_created_desc ON media(media_type, created_at DESC)`,
			`CREATE INDEX idx_blobs_created_at ON blobs(created_at)`,
		},
	},
}

func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].version
}

// appliedVersion returns the highest recorded version, or 0 for a database
// that has never been migrated.
func appliedVersion(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var tables int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`,
	).Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// runMigrations applies pending migrations, each in its own transaction.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := appliedVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > latestVersion() {
		return fmt.Errorf("%w: database at v%d, build knows v%d", ErrSchemaTooNew, current, latestVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s) statement %d: %w", m.version, m.description, i+1, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, formatTime(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}

// MigrationPlan reports pending migrations without writing to the database.
func MigrationPlan(ctx context.Context, db *sql.DB) (*MigrationStatus, error) {
	current, err := appliedVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	status := &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: latestVersion(),
		Pending:          []MigrationInfo{},
	}
	for _, m := range migrations {
		if m.version > current {
			status.Pending = append(status.Pending, MigrationInfo{Version: m.version, Description: m.description})
		}
	}
	return status, nil
}
