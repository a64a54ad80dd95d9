package database

import (
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/ankiforge/internal/model"
)

// InsertDrafts stores the drafts of a run under their slice index, which is
// the index push results refer to.
func (db *DB) InsertDrafts(runID int64, drafts []model.CardDraft) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO card_drafts (run_id, idx, draft_json) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, d := range drafts {
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encoding draft %d: %w", i, err)
		}
		if _, err := stmt.Exec(runID, i, string(data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetDrafts returns the drafts of a run in index order.
func (db *DB) GetDrafts(runID int64) ([]model.CardDraft, error) {
	rows, err := db.conn.Query(
		"SELECT idx, draft_json FROM card_drafts WHERE run_id = ? ORDER BY idx", runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []model.CardDraft
	for rows.Next() {
		var idx int
		var raw string
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, err
		}
		var d model.CardDraft
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decoding draft %d: %w", idx, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}
