package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"sma/internal/logging"
)

// DB is the assembler's artifact database: one SQLite file per data
// root holding the materialized stage artifacts so later stages can be
// re-run without repeating upstream work.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	path   string
}

// Open opens or creates the database at <dataRoot>/sma.db.
func Open(dataRoot string, logger *logging.Logger) (*DB, error) {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	path := filepath.Join(dataRoot, "sma.db")

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	db := &DB{conn: conn, logger: logger, path: path}
	if err := db.initializeSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// WithTx executes fn inside a transaction, rolling back on error or
// panic.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) initializeSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	config_key    TEXT NOT NULL,
	stage         TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	mapping_count INTEGER NOT NULL,
	payload       BLOB NOT NULL,
	PRIMARY KEY (config_key, stage)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
`
	_, err := db.conn.Exec(schema)
	return err
}
