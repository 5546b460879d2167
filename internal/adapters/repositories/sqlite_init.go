package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Initialize the SQLite database schema: geocode cache, registry snapshots and
// the patch log.
func InitSchema(ctx context.Context, db *sql.DB) error {
	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        city TEXT NOT NULL,
        country TEXT NOT NULL,
        lat REAL,
        lon REAL,
        failure TEXT NOT NULL DEFAULT '',
        resolved_at TEXT NOT NULL,
        PRIMARY KEY (city, country)
    );
	`

	createSnapshotsQuery := `
	CREATE TABLE IF NOT EXISTS registry_snapshots (
		version INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		projects TEXT NOT NULL DEFAULT ''
	);
	`

	createPatchLogQuery := `
	CREATE TABLE IF NOT EXISTS patch_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		op TEXT NOT NULL,
		payload TEXT NOT NULL,
		changed INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_registry_snapshots_run_id
    ON registry_snapshots(run_id);
	`

	createPatchLogIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_patch_log_run_id
    ON patch_log(run_id);
	`

	return execSchema(ctx, db, []string{
		createGeocodeCacheQuery,
		createSnapshotsQuery,
		createPatchLogQuery,
		createIndexQuery,
		createPatchLogIndexQuery,
	})
}

// Initialize the Postgres geocode cache table.
func InitPostgresSchema(ctx context.Context, db *sql.DB) error {
	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
        city TEXT NOT NULL,
        country TEXT NOT NULL,
        lat DOUBLE PRECISION,
        lon DOUBLE PRECISION,
        failure TEXT NOT NULL DEFAULT '',
        resolved_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (city, country)
    );
	`
	return execSchema(ctx, db, []string{createGeocodeCacheQuery})
}

func execSchema(ctx context.Context, db *sql.DB, statements []string) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
