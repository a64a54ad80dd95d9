package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const configuredWorkersKey = "configured_workers"

// GetSetting returns the value stored under key and whether it exists.
func (db *DB) GetSetting(key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting stores value under key.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timeLayout),
	)
	return err
}

// GetConfiguredWorkers returns the worker count adaptive concurrency left
// behind after the previous run. ok is false when nothing is stored yet.
func (db *DB) GetConfiguredWorkers() (workers int, ok bool, err error) {
	raw, ok, err := db.GetSetting(configuredWorkersKey)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s setting %q: %w", configuredWorkersKey, raw, err)
	}
	return n, true, nil
}

// SetConfiguredWorkers persists the worker count for the next run.
func (db *DB) SetConfiguredWorkers(n int) error {
	return db.SetSetting(configuredWorkersKey, strconv.Itoa(n))
}
