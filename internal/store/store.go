// Package store persists woven modules, their dispatch sites and dispatch
// traces in SQLite.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is recorded in the metadata table by Migrate.
const SchemaVersion = "1"

// Store is the SQLite data access layer for mixweave's tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes and records the schema version.
// Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.SetMeta("schema_version", SchemaVersion); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL UNIQUE,
  source_hash     TEXT NOT NULL,
  woven_hash      TEXT NOT NULL,
  targets         TEXT NOT NULL DEFAULT '[]',
  site_count      INTEGER NOT NULL DEFAULT 0,
  woven_at        TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sites (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  site_id         TEXT NOT NULL,
  kind            TEXT NOT NULL,
  target          TEXT NOT NULL,
  member          TEXT NOT NULL,
  discriminator   TEXT,
  ordinal         INTEGER NOT NULL,
  line            INTEGER,
  callbacks       TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS traces (
  id              INTEGER PRIMARY KEY,
  trace_id        TEXT NOT NULL,
  target          TEXT NOT NULL,
  member          TEXT NOT NULL,
  kind            TEXT NOT NULL,
  site_id         TEXT NOT NULL,
  callback        TEXT NOT NULL,
  cancelled       BOOLEAN DEFAULT FALSE,
  recorded_at     TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sites_module ON sites(module_id);
CREATE INDEX IF NOT EXISTS idx_sites_target ON sites(target, member);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sites_site_id ON sites(module_id, site_id);
CREATE INDEX IF NOT EXISTS idx_traces_site ON traces(site_id);
CREATE INDEX IF NOT EXISTS idx_traces_target ON traces(target, member);
CREATE INDEX IF NOT EXISTS idx_traces_trace ON traces(trace_id);
`

// SetMeta upserts a metadata entry.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// Meta returns a metadata entry, or "" when it is missing.
func (s *Store) Meta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("meta %s: %w", key, err)
	}
	return v, nil
}

// DeleteModule transactionally removes a module, its sites and the traces
// recorded against those sites.
func (s *Store) DeleteModule(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var moduleID int64
	err = tx.QueryRow("SELECT id FROM modules WHERE name = ?", name).Scan(&moduleID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query module: %w", err)
	}

	siteIDs, err := siteIDsTx(tx, moduleID)
	if err != nil {
		return err
	}
	if len(siteIDs) > 0 {
		if _, err := tx.Exec("DELETE FROM traces WHERE site_id IN ("+placeholderList(len(siteIDs))+")", stringsToArgs(siteIDs)...); err != nil {
			return fmt.Errorf("delete traces: %w", err)
		}
	}
	if err := deleteSitesTx(tx, moduleID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM modules WHERE id = ?", moduleID); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return tx.Commit()
}

func siteIDsTx(tx *sql.Tx, moduleID int64) ([]string, error) {
	rows, err := tx.Query("SELECT site_id FROM sites WHERE module_id = ?", moduleID)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan site id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deleteSitesTx(tx *sql.Tx, moduleID int64) error {
	if _, err := tx.Exec("DELETE FROM sites WHERE module_id = ?", moduleID); err != nil {
		return fmt.Errorf("delete sites: %w", err)
	}
	return nil
}
