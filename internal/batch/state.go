package batch

import "sync"

// State is the lifecycle state of a generation run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// ConcurrencyState is the throttling picture of a single run.
type ConcurrencyState struct {
	ConfiguredWorkers int
	ThrottleEvents    int
	TimeoutEvents     int
}

// Progress is a snapshot of the cumulative run counters.
type Progress struct {
	CardsGenerated int
	DocumentsDone  int
	DocumentsTotal int
}

// DocumentResult is reported once per finished document.
type DocumentResult struct {
	Index    int
	FileName string
	TraceID  string
	Cards    int
	Err      error
}

// runState is the only state shared between workers; every method holds mu
// just long enough to update and snapshot.
type runState struct {
	mu          sync.Mutex
	progress    Progress
	concurrency ConcurrencyState
	firstErr    error
}

func (s *runState) documentDone(cards int, err error) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.CardsGenerated += cards
	s.progress.DocumentsDone++
	if err != nil && s.firstErr == nil {
		s.firstErr = err
	}
	return s.progress
}

func (s *runState) recordThrottle() {
	s.mu.Lock()
	s.concurrency.ThrottleEvents++
	s.mu.Unlock()
}

func (s *runState) recordTimeout() {
	s.mu.Lock()
	s.concurrency.TimeoutEvents++
	s.mu.Unlock()
}

func (s *runState) snapshot() (Progress, ConcurrencyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, s.concurrency, s.firstErr
}
