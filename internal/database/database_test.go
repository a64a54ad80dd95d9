package database

import (
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/ankiforge/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func int64Ptr(v int64) *int64 { return &v }

func TestInsertAndFinishRun(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertRun("trace-1", 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero run ID")
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.State != "running" || run.Documents != 3 || run.Workers != 2 || run.FinishedAt != nil {
		t.Errorf("unexpected run %+v", run)
	}

	err = db.FinishRun(id, RunOutcome{State: "failed", Cards: 0, FirstError: "boom", Workers: 1, ThrottleEvents: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run, _ = db.GetRun(id)
	if run.State != "failed" || run.FirstError == nil || *run.FirstError != "boom" {
		t.Errorf("unexpected run %+v", run)
	}
	if run.Workers != 1 || run.ThrottleEvents != 2 || run.FinishedAt == nil {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("expected nil for missing run")
	}
	latest, err := db.GetLatestRun()
	if err != nil || latest != nil {
		t.Errorf("expected no latest run, got %+v %v", latest, err)
	}
}

func TestGetRecentRuns(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 3; i++ {
		if _, err := db.InsertRun("t", 1, 0); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.GetRecentRuns(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID <= runs[1].ID {
		t.Error("expected newest first")
	}

	latest, _ := db.GetLatestRun()
	if latest.ID != runs[0].ID {
		t.Errorf("expected latest %d, got %d", runs[0].ID, latest.ID)
	}
}

func TestDraftsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	runID, _ := db.InsertRun("t", 1, 0)

	drafts := []model.CardDraft{
		{Fields: map[string]string{"Front": "Q1", "Back": "A1"}, NoteType: "Basic", DeckName: "Default", Strategy: "basic"},
		{Fields: map[string]string{"Text": "{{c1::Go}} is a language"}, NoteType: "Cloze", DeckName: "Default", Strategy: "cloze"},
	}
	if err := db.InsertDrafts(runID, drafts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetDrafts(runID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(got))
	}
	if got[1].NoteType != "Cloze" || got[1].Field("Text") != "{{c1::Go}} is a language" {
		t.Errorf("unexpected draft %+v", got[1])
	}

	other, _ := db.GetDrafts(runID + 1)
	if len(other) != 0 {
		t.Error("expected no drafts for unknown run")
	}
}

func TestPushResults(t *testing.T) {
	db := openTestDB(t)
	runID, _ := db.InsertRun("t", 1, 0)

	res := &model.PushResult{
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		TraceID:   "push-trace",
		Results: []model.CardPushStatus{
			{Index: 0, NoteID: int64Ptr(1001), Success: true},
			{Index: 1, Success: false, Error: "Required field missing: Front"},
		},
	}
	if _, err := db.InsertPushResult(runID, "create_only", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pushes, err := db.GetPushResults(runID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pushes))
	}
	p := pushes[0]
	if p.Mode != "create_only" || p.TraceID != "push-trace" || p.Succeeded != 1 || p.Failed != 1 {
		t.Errorf("unexpected push %+v", p)
	}
	if len(p.Results) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(p.Results))
	}
	if !p.Results[0].Success || p.Results[0].NoteID == nil || *p.Results[0].NoteID != 1001 {
		t.Errorf("unexpected row %+v", p.Results[0])
	}
	if p.Results[1].Success || p.Results[1].NoteID != nil || p.Results[1].Error != "Required field missing: Front" {
		t.Errorf("unexpected row %+v", p.Results[1])
	}
}

func TestConfiguredWorkers(t *testing.T) {
	db := openTestDB(t)

	if _, ok, err := db.GetConfiguredWorkers(); err != nil || ok {
		t.Fatalf("expected no stored value, got ok=%v err=%v", ok, err)
	}
	if err := db.SetConfiguredWorkers(4); err != nil {
		t.Fatal(err)
	}
	if err := db.SetConfiguredWorkers(3); err != nil {
		t.Fatal(err)
	}
	n, ok, err := db.GetConfiguredWorkers()
	if err != nil || !ok || n != 3 {
		t.Errorf("expected 3, got %d ok=%v err=%v", n, ok, err)
	}

	if err := db.SetSetting(configuredWorkersKey, "many"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := db.GetConfiguredWorkers(); err == nil {
		t.Error("expected error for non-numeric setting")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	runID, _ := db.InsertRun("t", 1, 0)
	_ = db.FinishRun(runID, RunOutcome{State: "completed", Cards: 1})
	_ = db.InsertDrafts(runID, []model.CardDraft{{NoteType: "Basic"}})
	_, _ = db.InsertPushResult(runID, "create_only", &model.PushResult{Total: 1, Succeeded: 1, TraceID: "x"})
	_, _ = db.InsertRun("t", 1, 0)

	s, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Runs != 2 || s.CompletedRuns != 1 || s.Drafts != 1 || s.Pushes != 1 || s.PushedCards != 1 || s.FailedCards != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}
