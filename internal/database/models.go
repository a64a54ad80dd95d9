package database

import "github.com/TobiSchelling/ankiforge/internal/model"

// Run is one stored batch generation run.
type Run struct {
	ID             int64
	TraceID        string
	State          string
	Documents      int
	Cards          int
	FirstError     *string
	Workers        int
	ThrottleEvents int
	TimeoutEvents  int
	StartedAt      string
	FinishedAt     *string
}

// RunOutcome is what FinishRun records once a run reaches a terminal state.
type RunOutcome struct {
	State          string
	Cards          int
	FirstError     string
	Workers        int
	ThrottleEvents int
	TimeoutEvents  int
}

// PushRun is one stored push of a run's drafts, with its per-card ledger.
type PushRun struct {
	ID        int64
	RunID     int64
	TraceID   string
	Mode      string
	Total     int
	Succeeded int
	Failed    int
	PushedAt  string
	Results   []model.CardPushStatus
}

// Stats contains aggregate database statistics.
type Stats struct {
	Runs          int
	CompletedRuns int
	Drafts        int
	Pushes        int
	PushedCards   int
	FailedCards   int
}
