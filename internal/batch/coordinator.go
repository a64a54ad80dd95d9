// Package batch fans card generation out over documents with a bounded,
// self-tuning worker pool.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ankiforge/internal/allocate"
	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/cardgen"
	"github.com/TobiSchelling/ankiforge/internal/llm"
	"github.com/TobiSchelling/ankiforge/internal/metrics"
	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

// DefaultMaxWorkers is the ceiling used when Options.MaxWorkers is unset.
const DefaultMaxWorkers = 8

// DocumentGenerator produces drafts for a single document.
type DocumentGenerator interface {
	Generate(ctx context.Context, req cardgen.Request) ([]model.CardDraft, error)
}

// Factory builds the generator for one run; obs must receive every failed
// completion attempt so the run can adapt its concurrency.
type Factory func(obs llm.Observer) DocumentGenerator

// Options configures a Coordinator.
type Options struct {
	// Workers is the starting pool size; 0 means one worker per document.
	Workers    int
	MaxWorkers int
	Adaptive   bool

	Deck           string
	Tags           []string
	AutoSplit      bool
	SplitThreshold int
}

// Callbacks let a host observe a run. Any of them may be nil; they are
// called from worker goroutines.
type Callbacks struct {
	OnState    func(State)
	OnProgress func(Progress)
	OnDocument func(DocumentResult)
	OnMessage  func(string)
}

// Input is the work for one run.
type Input struct {
	Documents []model.ConvertedDocument
	Config    model.GenerationConfig
}

// Result is the outcome of a run.
type Result struct {
	TraceID     string
	State       State
	Cards       []model.CardDraft
	Allocation  model.Allocation
	Progress    Progress
	Concurrency ConcurrencyState
	// NextWorkers is the pool size the following run will start with.
	NextWorkers int
	FirstError  error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Coordinator runs generation batches. It keeps the adapted worker count
// between runs.
type Coordinator struct {
	factory Factory
	opts    Options
	cb      Callbacks
	metrics *metrics.Metrics

	mu      sync.Mutex
	workers int

	cancelled atomic.Bool
}

// New creates a coordinator.
func New(factory Factory, opts Options, cb Callbacks) *Coordinator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.Workers < 0 {
		opts.Workers = 0
	}
	return &Coordinator{factory: factory, opts: opts, cb: cb, workers: opts.Workers}
}

// WithMetrics attaches collectors; nil disables recording.
func (c *Coordinator) WithMetrics(m *metrics.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// Workers returns the pool size the next run starts with.
func (c *Coordinator) Workers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workers
}

// SetWorkers overrides the next run's pool size, e.g. from persisted state.
func (c *Coordinator) SetWorkers(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.workers = n
	c.mu.Unlock()
}

// Cancel asks the current run to stop starting new work. In-flight
// completion calls are allowed to finish. A cancel issued before Run
// starts applies to that run; the flag clears when a run returns.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

// Run generates drafts for every document and returns them in document
// order. A run that produced no cards but recorded an error fails with that
// error; other document failures are only logged.
func (c *Coordinator) Run(ctx context.Context, in Input) (*Result, error) {
	ctx, traceID := trace.Ensure(ctx, "")
	defer c.cancelled.Store(false)

	res := &Result{TraceID: traceID, State: StatePending, StartedAt: time.Now()}
	c.setState(res, StatePending)

	if err := c.checkPreconditions(traceID, in); err != nil {
		return c.fail(res, err)
	}
	alloc := allocate.StrategyCounts(in.Config.TargetTotal, in.Config.StrategyMix)
	if len(alloc) == 0 {
		return c.fail(res, apperr.New(apperr.ConfigInvalid, traceID,
			"strategy mix %v with target %d allocates no cards", in.Config.StrategyMix, in.Config.TargetTotal))
	}
	res.Allocation = alloc
	perDoc := allocate.PerDocument(len(in.Documents), alloc)

	configured := c.Workers()
	poolSize := configured
	if poolSize == 0 {
		poolSize = len(in.Documents)
	}

	state := &runState{
		progress:    Progress{DocumentsTotal: len(in.Documents)},
		concurrency: ConcurrencyState{ConfiguredWorkers: configured},
	}
	gen := c.factory(func(kind llm.FailureKind) {
		switch kind {
		case llm.FailureRateLimited:
			state.recordThrottle()
		case llm.FailureTimeout:
			state.recordTimeout()
		}
		c.metrics.RecordLLMFailure(string(kind))
	})

	slog.Info("generation run started",
		"trace_id", traceID,
		"documents", len(in.Documents),
		"target_total", in.Config.TargetTotal,
		"workers", poolSize)
	c.setState(res, StateRunning)

	results := make([][]model.CardDraft, len(in.Documents))
	stop := func() bool { return c.cancelled.Load() || ctx.Err() != nil }

	var g errgroup.Group
	g.SetLimit(poolSize)
	for i, doc := range in.Documents {
		g.Go(func() error {
			if stop() {
				return nil
			}
			results[i] = c.runDocument(ctx, gen, state, i, doc, perDoc[i], stop)
			return nil
		})
	}
	_ = g.Wait()

	progress, conc, firstErr := state.snapshot()
	res.Progress = progress
	res.Concurrency = conc
	res.FirstError = firstErr
	for _, cards := range results {
		res.Cards = append(res.Cards, cards...)
	}
	res.NextWorkers = c.adapt(traceID, conc, len(in.Documents))

	var runErr error
	switch {
	case stop():
		res.State = StateCancelled
	case len(res.Cards) == 0 && firstErr != nil:
		res.State = StateFailed
		runErr = firstErr
	default:
		res.State = StateCompleted
		if firstErr != nil {
			slog.Warn("generation completed with document failures", "trace_id", traceID, "first_error", firstErr)
		}
	}
	res.FinishedAt = time.Now()
	c.metrics.RecordRun(string(res.State), res.FinishedAt.Sub(res.StartedAt))

	slog.Info("generation run finished",
		"trace_id", traceID,
		"state", res.State,
		"cards", len(res.Cards),
		"throttle_events", conc.ThrottleEvents,
		"timeout_events", conc.TimeoutEvents,
		"next_workers", res.NextWorkers)
	c.setState(res, res.State)
	return res, runErr
}

func (c *Coordinator) runDocument(ctx context.Context, gen DocumentGenerator, state *runState, index int, doc model.ConvertedDocument, alloc model.Allocation, stop func() bool) []model.CardDraft {
	if doc.TraceID == "" {
		doc.TraceID = trace.NewID()
	}
	docCtx := trace.WithID(ctx, doc.TraceID)

	var cards []model.CardDraft
	var err error
	if len(alloc) > 0 {
		cards, err = gen.Generate(docCtx, cardgen.Request{
			Document:       doc,
			Allocation:     alloc,
			Deck:           c.opts.Deck,
			Tags:           c.opts.Tags,
			AutoSplit:      c.opts.AutoSplit,
			SplitThreshold: c.opts.SplitThreshold,
			Stop:           stop,
		})
	}

	if err != nil {
		slog.Error("document generation failed", "file", doc.FileName, "trace_id", doc.TraceID, "error", err)
		c.metrics.RecordDocument("failed")
	} else {
		c.metrics.RecordDocument("ok")
		for _, card := range cards {
			c.metrics.RecordCards(card.Strategy, 1)
		}
	}

	progress := state.documentDone(len(cards), err)
	if c.cb.OnDocument != nil {
		c.cb.OnDocument(DocumentResult{Index: index, FileName: doc.FileName, TraceID: doc.TraceID, Cards: len(cards), Err: err})
	}
	if c.cb.OnProgress != nil {
		c.cb.OnProgress(progress)
	}
	return cards
}

func (c *Coordinator) checkPreconditions(traceID string, in Input) error {
	if len(in.Config.StrategyMix) == 0 {
		return apperr.New(apperr.ConfigInvalid, traceID, "strategy mix is empty")
	}
	if len(in.Documents) == 0 {
		return apperr.New(apperr.ConfigInvalid, traceID, "no documents to process")
	}
	return nil
}

// adapt applies the additive increase/decrease rule and returns the pool
// size for the next run.
func (c *Coordinator) adapt(traceID string, conc ConcurrencyState, documents int) int {
	c.mu.Lock()
	if !c.opts.Adaptive {
		defer c.mu.Unlock()
		return c.workers
	}

	current := c.workers
	effective := current
	if effective == 0 {
		effective = documents
	}

	var msg string
	switch {
	case conc.ThrottleEvents > 0:
		next := max(1, effective-1)
		if next < effective {
			msg = fmt.Sprintf("Rate limiting detected (%d events): reducing workers from %d to %d",
				conc.ThrottleEvents, effective, next)
		}
		c.workers = next
	case conc.TimeoutEvents == 0 && current > 0 && current < c.opts.MaxWorkers:
		c.workers = current + 1
		slog.Debug("clean run, increasing workers", "trace_id", traceID, "from", current, "to", c.workers)
	}
	next := c.workers
	c.mu.Unlock()

	c.metrics.SetConfiguredWorkers(next)
	if msg != "" {
		c.message(msg)
	}
	return next
}

func (c *Coordinator) fail(res *Result, err error) (*Result, error) {
	res.State = StateFailed
	res.FirstError = err
	res.FinishedAt = time.Now()
	slog.Error("generation run failed", "trace_id", res.TraceID, "error", err)
	c.setState(res, StateFailed)
	return res, err
}

func (c *Coordinator) setState(res *Result, s State) {
	res.State = s
	if c.cb.OnState != nil {
		c.cb.OnState(s)
	}
}

func (c *Coordinator) message(msg string) {
	slog.Info(msg)
	if c.cb.OnMessage != nil {
		c.cb.OnMessage(msg)
	}
}
