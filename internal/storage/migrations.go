package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV1_1Up,
		Down:    migrationV1_1Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Collections: one embedding model and dimension each
CREATE TABLE IF NOT EXISTS collections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL CHECK (dimension > 0),
    created_at TIMESTAMP NOT NULL
);

-- File fingerprints, written in the same transaction as the file's chunks
CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    mod_time TIMESTAMP,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    indexed_at TIMESTAMP NOT NULL,
    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
    UNIQUE(collection_id, file_path)
);

CREATE INDEX IF NOT EXISTS idx_files_collection ON files(collection_id);

-- Chunks with their embeddings
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id INTEGER NOT NULL,
    chunk_key TEXT NOT NULL,
    file_path TEXT NOT NULL,
    chunk_type TEXT NOT NULL,
    name TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    start_byte INTEGER NOT NULL,
    end_byte INTEGER NOT NULL,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    parent_key TEXT,
    vector BLOB NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
    UNIQUE(collection_id, chunk_key),
    CHECK (parent_key IS NULL OR parent_key <> chunk_key)
);

CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(collection_id, file_path);
CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(collection_id, parent_key);
CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(collection_id, chunk_type);
`

const migrationV1Down = `
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS files;
DROP TABLE IF EXISTS collections;
DROP TABLE IF EXISTS schema_version;
`

const migrationV1_1Up = `
-- Ingestion runs and the files they could not ingest
CREATE TABLE IF NOT EXISTS ingest_runs (
    id TEXT PRIMARY KEY,
    collection_id INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    processed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    pruned INTEGER NOT NULL DEFAULT 0,
    chunks INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_collection ON ingest_runs(collection_id, started_at);

CREATE TABLE IF NOT EXISTS ingest_failures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES ingest_runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_ingest_failures_run ON ingest_failures(run_id);
`

const migrationV1_1Down = `
DROP TABLE IF EXISTS ingest_failures;
DROP TABLE IF EXISTS ingest_runs;
`

// currentVersion reads the highest applied schema version, 0.0.0 when none
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		parsed, err := semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", v, err)
		}
		if parsed.GreaterThan(current) {
			current = parsed
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !current.LessThan(migrationVersion) {
			continue // Already applied
		}

		if err := applyMigration(ctx, db, migration); err != nil {
			return err
		}
		current = migrationVersion
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", migration.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
	}
	return tx.Commit()
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		if semver.MustParse(AllMigrations[i].Version).Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	// The first migration drops schema_version itself
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil {
		var tableName string
		if scanErr := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName); errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}

	return nil
}
