package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/cardgen"
	"github.com/TobiSchelling/ankiforge/internal/llm"
	"github.com/TobiSchelling/ankiforge/internal/model"
)

// fakeGenerator behaves per file name: it may report failure kinds to the
// observer, return an error, or return one card per allocated count.
type fakeGenerator struct {
	obs      llm.Observer
	failures map[string][]llm.FailureKind
	errs     map[string]error
	before   func(doc model.ConvertedDocument)
	delay    time.Duration

	mu       sync.Mutex
	requests map[string]model.Allocation

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeGenerator) Generate(ctx context.Context, req cardgen.Request) ([]model.CardDraft, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	name := req.Document.FileName
	f.mu.Lock()
	if f.requests == nil {
		f.requests = map[string]model.Allocation{}
	}
	f.requests[name] = req.Allocation
	f.mu.Unlock()

	if f.before != nil {
		f.before(req.Document)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	for _, kind := range f.failures[name] {
		f.obs(kind)
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}

	var cards []model.CardDraft
	for _, sc := range req.Allocation {
		for i := 0; i < sc.Count; i++ {
			cards = append(cards, model.CardDraft{
				Fields:   map[string]string{"Front": name},
				Strategy: sc.Strategy,
				Source:   name,
				TraceID:  req.Document.TraceID,
			})
		}
	}
	return cards, nil
}

func docs(names ...string) []model.ConvertedDocument {
	out := make([]model.ConvertedDocument, len(names))
	for i, n := range names {
		out[i] = model.ConvertedDocument{Content: "content of " + n, FileName: n, SourceFormat: model.FormatMarkdown}
	}
	return out
}

func input(target int, names ...string) Input {
	return Input{
		Documents: docs(names...),
		Config: model.GenerationConfig{
			TargetTotal: target,
			StrategyMix: []model.StrategyRatio{{Strategy: "basic", Ratio: 100}},
		},
	}
}

func newCoordinator(fg *fakeGenerator, opts Options, cb Callbacks) (*Coordinator, *atomic.Int32) {
	var built atomic.Int32
	c := New(func(obs llm.Observer) DocumentGenerator {
		built.Add(1)
		fg.obs = obs
		return fg
	}, opts, cb)
	return c, &built
}

func TestRunCollectsCardsInDocumentOrder(t *testing.T) {
	fg := &fakeGenerator{}
	c, _ := newCoordinator(fg, Options{Workers: 3}, Callbacks{})

	res, err := c.Run(context.Background(), input(5, "a.md", "b.md", "c.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %s", res.State)
	}
	if len(res.Cards) != 5 {
		t.Fatalf("expected 5 cards, got %d", len(res.Cards))
	}
	want := []string{"a.md", "a.md", "b.md", "b.md", "c.md"}
	for i, card := range res.Cards {
		if card.Source != want[i] {
			t.Errorf("card %d from %s, want %s", i, card.Source, want[i])
		}
	}
	if got := fg.requests["a.md"].Get("basic"); got != 2 {
		t.Errorf("expected first document to get 2 cards, got %d", got)
	}
	for _, card := range res.Cards {
		if card.TraceID == "" {
			t.Error("expected every document to get a trace id")
		}
	}
}

func TestRunReportsStatesAndProgress(t *testing.T) {
	fg := &fakeGenerator{}
	var mu sync.Mutex
	var states []State
	var progress []Progress
	var documents []DocumentResult
	c, _ := newCoordinator(fg, Options{Workers: 2}, Callbacks{
		OnState: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		OnProgress: func(p Progress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
		OnDocument: func(d DocumentResult) {
			mu.Lock()
			documents = append(documents, d)
			mu.Unlock()
		},
	})

	if _, err := c.Run(context.Background(), input(4, "a.md", "b.md")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStates := []State{StatePending, StateRunning, StateCompleted}
	if len(states) != len(wantStates) {
		t.Fatalf("expected states %v, got %v", wantStates, states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Errorf("state %d: got %s, want %s", i, states[i], wantStates[i])
		}
	}
	if len(progress) != 2 || len(documents) != 2 {
		t.Fatalf("expected 2 progress and document events, got %d and %d", len(progress), len(documents))
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].CardsGenerated < progress[i-1].CardsGenerated || progress[i].DocumentsDone <= progress[i-1].DocumentsDone {
			t.Errorf("progress not monotonic: %v", progress)
		}
	}
	last := progress[len(progress)-1]
	if last.CardsGenerated != 4 || last.DocumentsDone != 2 || last.DocumentsTotal != 2 {
		t.Errorf("unexpected final progress: %+v", last)
	}
}

func TestRunPartialFailureIsSwallowed(t *testing.T) {
	fg := &fakeGenerator{errs: map[string]error{"bad.md": errors.New("parse failure")}}
	c, _ := newCoordinator(fg, Options{Workers: 2}, Callbacks{})

	res, err := c.Run(context.Background(), input(4, "bad.md", "good.md"))
	if err != nil {
		t.Fatalf("expected partial failure to be swallowed, got %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("expected completed, got %s", res.State)
	}
	if len(res.Cards) != 2 {
		t.Errorf("expected 2 cards from good.md, got %d", len(res.Cards))
	}
	if res.FirstError == nil || !strings.Contains(res.FirstError.Error(), "parse failure") {
		t.Errorf("expected first error to be kept, got %v", res.FirstError)
	}
}

func TestRunFailsWhenNothingProduced(t *testing.T) {
	boom := errors.New("llm down")
	fg := &fakeGenerator{errs: map[string]error{"a.md": boom, "b.md": boom}}
	c, _ := newCoordinator(fg, Options{Workers: 1}, Callbacks{})

	res, err := c.Run(context.Background(), input(4, "a.md", "b.md"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected run error %v, got %v", boom, err)
	}
	if res.State != StateFailed {
		t.Errorf("expected failed, got %s", res.State)
	}
}

func TestRunPreconditions(t *testing.T) {
	cases := map[string]Input{
		"empty mix":       {Documents: docs("a.md"), Config: model.GenerationConfig{TargetTotal: 3}},
		"no documents":    input(3),
		"zero allocation": input(0, "a.md"),
		"invalid ratios": {Documents: docs("a.md"), Config: model.GenerationConfig{
			TargetTotal: 3,
			StrategyMix: []model.StrategyRatio{{Strategy: "basic", Ratio: 0}},
		}},
	}
	for name, in := range cases {
		fg := &fakeGenerator{}
		c, built := newCoordinator(fg, Options{}, Callbacks{})
		res, err := c.Run(context.Background(), in)
		if apperr.CodeOf(err) != apperr.ConfigInvalid {
			t.Errorf("%s: expected E_CONFIG_INVALID, got %v", name, err)
		}
		if res.State != StateFailed {
			t.Errorf("%s: expected failed state, got %s", name, res.State)
		}
		if built.Load() != 0 || len(fg.requests) != 0 {
			t.Errorf("%s: expected no work dispatched", name)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	fg := &fakeGenerator{}
	c, _ := newCoordinator(fg, Options{Workers: 1}, Callbacks{})
	fg.before = func(doc model.ConvertedDocument) {
		if doc.FileName == "a.md" {
			c.Cancel()
		}
	}

	res, err := c.Run(context.Background(), input(3, "a.md", "b.md", "c.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	if _, started := fg.requests["b.md"]; started {
		t.Error("expected no new document to start after cancel")
	}
	if len(res.Cards) != 1 {
		t.Errorf("expected in-flight document to finish with 1 card, got %d", len(res.Cards))
	}
}

func TestCancelBeforeRunIsHonoured(t *testing.T) {
	fg := &fakeGenerator{}
	c, _ := newCoordinator(fg, Options{Workers: 2}, Callbacks{})
	c.Cancel()

	res, err := c.Run(context.Background(), input(2, "a.md", "b.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	if len(fg.requests) != 0 {
		t.Errorf("expected no documents to start, got %v", fg.requests)
	}

	// The flag does not leak into the next run.
	res, err = c.Run(context.Background(), input(2, "a.md", "b.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted || len(res.Cards) != 2 {
		t.Errorf("expected completed run with 2 cards, got %s with %d", res.State, len(res.Cards))
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	fg := &fakeGenerator{delay: 20 * time.Millisecond}
	c, _ := newCoordinator(fg, Options{Workers: 2}, Callbacks{})

	if _, err := c.Run(context.Background(), input(6, "a", "b", "c", "d", "e", "f")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fg.maxInFlight.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent documents, got %d", got)
	}
}

func TestAdaptiveDecreaseOnThrottle(t *testing.T) {
	fg := &fakeGenerator{failures: map[string][]llm.FailureKind{"a.md": {llm.FailureRateLimited}}}
	var messages []string
	c, _ := newCoordinator(fg, Options{Workers: 3, Adaptive: true}, Callbacks{
		OnMessage: func(m string) { messages = append(messages, m) },
	})

	res, err := c.Run(context.Background(), input(3, "a.md", "b.md", "c.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Concurrency.ThrottleEvents != 1 {
		t.Errorf("expected 1 throttle event, got %d", res.Concurrency.ThrottleEvents)
	}
	if res.NextWorkers != 2 || c.Workers() != 2 {
		t.Errorf("expected workers 3 -> 2, got next=%d stored=%d", res.NextWorkers, c.Workers())
	}
	if len(messages) != 1 || !strings.Contains(messages[0], "from 3 to 2") {
		t.Errorf("expected a message naming old and new values, got %v", messages)
	}
}

func TestAdaptiveDecreaseFloorsAtOne(t *testing.T) {
	fg := &fakeGenerator{failures: map[string][]llm.FailureKind{"a.md": {llm.FailureRateLimited, llm.FailureRateLimited}}}
	c, _ := newCoordinator(fg, Options{Workers: 1, Adaptive: true}, Callbacks{})

	if _, err := c.Run(context.Background(), input(1, "a.md")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Workers() != 1 {
		t.Errorf("expected floor of 1, got %d", c.Workers())
	}
}

func TestAdaptiveDecreaseFromFanOut(t *testing.T) {
	fg := &fakeGenerator{failures: map[string][]llm.FailureKind{"b.md": {llm.FailureRateLimited}}}
	c, _ := newCoordinator(fg, Options{Workers: 0, Adaptive: true}, Callbacks{})

	if _, err := c.Run(context.Background(), input(4, "a.md", "b.md", "c.md", "d.md")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Workers() != 3 {
		t.Errorf("expected fan-out of 4 to drop to 3, got %d", c.Workers())
	}
}

func TestAdaptiveIncreaseOnCleanRun(t *testing.T) {
	fg := &fakeGenerator{}
	c, _ := newCoordinator(fg, Options{Workers: 3, MaxWorkers: 4, Adaptive: true}, Callbacks{})

	if _, err := c.Run(context.Background(), input(2, "a.md", "b.md")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Workers() != 4 {
		t.Fatalf("expected 3 -> 4, got %d", c.Workers())
	}

	if _, err := c.Run(context.Background(), input(2, "a.md", "b.md")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Workers() != 4 {
		t.Errorf("expected ceiling of 4 to hold, got %d", c.Workers())
	}
}

func TestAdaptiveTimeoutsHoldSteady(t *testing.T) {
	fg := &fakeGenerator{failures: map[string][]llm.FailureKind{"a.md": {llm.FailureTimeout}}}
	c, _ := newCoordinator(fg, Options{Workers: 3, Adaptive: true}, Callbacks{})

	res, err := c.Run(context.Background(), input(2, "a.md", "b.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Concurrency.TimeoutEvents != 1 || c.Workers() != 3 {
		t.Errorf("expected timeouts to keep 3 workers, got %d (events %d)", c.Workers(), res.Concurrency.TimeoutEvents)
	}
}

func TestNonAdaptiveKeepsWorkers(t *testing.T) {
	fg := &fakeGenerator{failures: map[string][]llm.FailureKind{"a.md": {llm.FailureRateLimited}}}
	c, _ := newCoordinator(fg, Options{Workers: 3}, Callbacks{})

	if _, err := c.Run(context.Background(), input(2, "a.md")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Workers() != 3 {
		t.Errorf("expected 3 workers without adaptation, got %d", c.Workers())
	}
}
