// Package database stores generation runs, their card drafts, push ledgers
// and the adaptive worker count in a single SQLite file.
package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// busyTimeoutMillis bounds how long a writer waits for a lock held by another
// ankiforge process, e.g. `push` while `serve` is reading the same file.
const busyTimeoutMillis = 5000

// DB is the ankiforge history database.
type DB struct {
	conn *sql.DB
	path string
}

// dsn sets the pragmas on every pooled connection rather than only the
// first one.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + dbPath + "?" + q.Encode()
}

// Open opens the history database at dbPath, creating it and its directory
// if needed, and migrates it to the latest schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
