package database

import (
	"database/sql"
	"errors"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// InsertRun records the start of a generation run.
func (db *DB) InsertRun(traceID string, documents, workers int) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO generation_runs (trace_id, state, documents, workers, started_at)
		VALUES (?, 'running', ?, ?, ?)`,
		traceID, documents, workers, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishRun stores the terminal state of a run.
func (db *DB) FinishRun(id int64, o RunOutcome) error {
	var firstError *string
	if o.FirstError != "" {
		firstError = &o.FirstError
	}
	_, err := db.conn.Exec(
		`UPDATE generation_runs
		SET state = ?, cards = ?, first_error = ?, workers = ?, throttle_events = ?, timeout_events = ?, finished_at = ?
		WHERE id = ?`,
		o.State, o.Cards, firstError, o.Workers, o.ThrottleEvents, o.TimeoutEvents,
		time.Now().UTC().Format(timeLayout), id,
	)
	return err
}

const runColumns = `id, trace_id, state, documents, cards, first_error, workers,
	throttle_events, timeout_events, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.TraceID, &r.State, &r.Documents, &r.Cards, &r.FirstError,
		&r.Workers, &r.ThrottleEvents, &r.TimeoutEvents, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun returns a run by id, or nil if it does not exist.
func (db *DB) GetRun(id int64) (*Run, error) {
	r, err := scanRun(db.conn.QueryRow("SELECT "+runColumns+" FROM generation_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetLatestRun returns the most recent run, or nil when there is none.
func (db *DB) GetLatestRun() (*Run, error) {
	r, err := scanRun(db.conn.QueryRow("SELECT " + runColumns + " FROM generation_runs ORDER BY id DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetRecentRuns returns up to limit runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		"SELECT "+runColumns+" FROM generation_runs ORDER BY id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM generation_runs", &s.Runs},
		{"SELECT COUNT(*) FROM generation_runs WHERE state = 'completed'", &s.CompletedRuns},
		{"SELECT COUNT(*) FROM card_drafts", &s.Drafts},
		{"SELECT COUNT(*) FROM push_runs", &s.Pushes},
		{"SELECT COALESCE(SUM(succeeded), 0) FROM push_runs", &s.PushedCards},
		{"SELECT COALESCE(SUM(failed), 0) FROM push_runs", &s.FailedCards},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
