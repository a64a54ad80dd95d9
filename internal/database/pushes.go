package database

import (
	"time"

	"github.com/TobiSchelling/ankiforge/internal/model"
)

// InsertPushResult stores a push of runID's drafts and its per-card ledger.
func (db *DB) InsertPushResult(runID int64, mode string, res *model.PushResult) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO push_runs (run_id, trace_id, mode, total, succeeded, failed, pushed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, res.TraceID, mode, res.Total, res.Succeeded, res.Failed,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	pushID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, r := range res.Results {
		var errText *string
		if r.Error != "" {
			errText = &r.Error
		}
		if _, err := tx.Exec(
			"INSERT INTO push_results (push_id, idx, note_id, success, error) VALUES (?, ?, ?, ?, ?)",
			pushID, r.Index, r.NoteID, r.Success, errText,
		); err != nil {
			return 0, err
		}
	}

	return pushID, tx.Commit()
}

// GetPushResults returns every push of runID, newest first, with ledgers.
func (db *DB) GetPushResults(runID int64) ([]PushRun, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, trace_id, mode, total, succeeded, failed, pushed_at
		FROM push_runs WHERE run_id = ? ORDER BY id DESC`, runID,
	)
	if err != nil {
		return nil, err
	}

	var pushes []PushRun
	for rows.Next() {
		var p PushRun
		if err := rows.Scan(&p.ID, &p.RunID, &p.TraceID, &p.Mode, &p.Total, &p.Succeeded, &p.Failed, &p.PushedAt); err != nil {
			rows.Close()
			return nil, err
		}
		pushes = append(pushes, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pushes {
		results, err := db.getPushLedger(pushes[i].ID)
		if err != nil {
			return nil, err
		}
		pushes[i].Results = results
	}
	return pushes, nil
}

func (db *DB) getPushLedger(pushID int64) ([]model.CardPushStatus, error) {
	rows, err := db.conn.Query(
		"SELECT idx, note_id, success, error FROM push_results WHERE push_id = ? ORDER BY idx", pushID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.CardPushStatus
	for rows.Next() {
		var r model.CardPushStatus
		var errText *string
		if err := rows.Scan(&r.Index, &r.NoteID, &r.Success, &errText); err != nil {
			return nil, err
		}
		if errText != nil {
			r.Error = *errText
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
