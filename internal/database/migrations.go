package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS generation_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trace_id TEXT NOT NULL,
    state TEXT NOT NULL,
    documents INTEGER DEFAULT 0,
    cards INTEGER DEFAULT 0,
    first_error TEXT,
    workers INTEGER DEFAULT 0,
    throttle_events INTEGER DEFAULT 0,
    timeout_events INTEGER DEFAULT 0,
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS card_drafts (
    run_id INTEGER NOT NULL REFERENCES generation_runs(id),
    idx INTEGER NOT NULL,
    draft_json TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS push_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES generation_runs(id),
    trace_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    total INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    pushed_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS push_results (
    push_id INTEGER NOT NULL REFERENCES push_runs(id),
    idx INTEGER NOT NULL,
    note_id INTEGER,
    success INTEGER NOT NULL,
    error TEXT,
    PRIMARY KEY (push_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_push_runs_run ON push_runs(run_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "settings",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT DEFAULT (datetime('now'))
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
