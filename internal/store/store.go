// Package store provides the embedded SQLite database backing the local
// catalog mirror.
//
// The database runs in embedded mode (no cgo) with WAL enabled so
// concurrent readers are never blocked by the sync writer. Records are
// keyed by their remote iNaturalist IDs and written wholesale: an upsert
// replaces every column, so a full record can overwrite a partial one
// without merge logic.
//
// Schema:
//   - taxa:         taxonomic tree nodes; ID lists stored as JSON arrays
//   - observations: one row per user observation; RFC3339 UTC timestamps
//   - app_state:    single-row JSON checkpoint (id = 0)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/acormier/vireo/internal/domain"
)

// DB wraps the embedded SQLite connection with mirror-specific queries.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path, creating the
// file and its parent directory if they don't exist.
//
// The caller must call Close when done so the WAL gets checkpointed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// WAL keeps page reads concurrent with sync writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Path returns the database file location
func (db *DB) Path() string { return db.path }

// handle returns the live connection, or ErrStoreClosed after Close
func (db *DB) handle() (*sql.DB, error) {
	if db.conn == nil {
		return nil, domain.ErrStoreClosed
	}
	return db.conn, nil
}

// Close checkpoints the WAL and closes the connection. Safe to call on
// an already closed DB.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the mirror tables and indexes if they don't exist.
// Idempotent, safe to call on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS taxa (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		rank TEXT NOT NULL DEFAULT '',
		common_name TEXT NOT NULL DEFAULT '',
		ancestor_ids TEXT NOT NULL DEFAULT '[]',  -- JSON array
		child_ids TEXT NOT NULL DEFAULT '[]',     -- JSON array
		photo_url TEXT NOT NULL DEFAULT '',
		iconic_taxon_id INTEGER NOT NULL DEFAULT 0,
		observations_count INTEGER NOT NULL DEFAULT 0,
		partial INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY,
		taxon_id INTEGER NOT NULL DEFAULT 0,
		username TEXT NOT NULL,
		created_at TEXT NOT NULL,
		observed_on TEXT,
		updated_at TEXT,
		description TEXT NOT NULL DEFAULT '',
		place_guess TEXT NOT NULL DEFAULT '',
		quality_grade TEXT NOT NULL DEFAULT '',
		photo_urls TEXT NOT NULL DEFAULT '[]',  -- JSON array
		partial INTEGER NOT NULL DEFAULT 0
	);

	-- Single-row checkpoint, content is a JSON document
	CREATE TABLE IF NOT EXISTS app_state (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		content TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_taxa_name ON taxa(name);
	CREATE INDEX IF NOT EXISTS idx_taxa_common_name ON taxa(common_name);

	-- Composite index for local page reads
	CREATE INDEX IF NOT EXISTS idx_obs_user_created
	    ON observations(username, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_obs_taxon ON observations(taxon_id);
	`

	conn, err := db.handle()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
