// Package pipeline wires document loading, batch generation, storage and
// pushing into the steps the CLI runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/ankiforge/internal/anki"
	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/batch"
	"github.com/TobiSchelling/ankiforge/internal/cardgen"
	"github.com/TobiSchelling/ankiforge/internal/config"
	"github.com/TobiSchelling/ankiforge/internal/database"
	"github.com/TobiSchelling/ankiforge/internal/llm"
	"github.com/TobiSchelling/ankiforge/internal/metrics"
	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a pipeline invocation.
type Result struct {
	RunID   int64
	TraceID string
	Steps   []StepResult
	Batch   *batch.Result
	Push    *model.PushResult
}

// Err returns the first step error.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Pipeline generates drafts from documents, stores them and pushes them.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	gateway *anki.Gateway
	coord   *batch.Coordinator
	metrics *metrics.Metrics
	pinned  bool
}

// New creates a pipeline from cfg, building the LLM provider and the
// AnkiConnect client it describes.
func New(cfg *config.Config, db *database.DB, m *metrics.Metrics, cb batch.Callbacks) (*Pipeline, error) {
	provider, err := llm.CreateProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	backend := anki.NewClient(cfg.Anki.URL, cfg.Anki.Key(), cfg.Anki.Timeout())
	return NewWith(cfg, db, provider, backend, m, cb), nil
}

// NewWith creates a pipeline over an explicit provider and Anki backend.
func NewWith(cfg *config.Config, db *database.DB, provider llm.Provider, backend anki.Backend, m *metrics.Metrics, cb batch.Callbacks) *Pipeline {
	client := llm.NewClient(provider, llm.OptionsFromConfig(cfg.LLM))

	gen := cfg.Generation
	coord := batch.New(func(obs llm.Observer) batch.DocumentGenerator {
		return cardgen.NewGenerator(client.WithObserver(obs))
	}, batch.Options{
		Workers:        gen.Workers,
		MaxWorkers:     gen.MaxWorkers,
		Adaptive:       gen.Adaptive,
		Deck:           gen.Deck,
		Tags:           gen.Tags,
		AutoSplit:      gen.AutoSplit,
		SplitThreshold: gen.SplitThreshold,
	}, cb).WithMetrics(m)

	return &Pipeline{
		cfg:     cfg,
		db:      db,
		gateway: anki.NewGateway(backend).WithMetrics(m),
		coord:   coord,
		metrics: m,
	}
}

// SetWorkers fixes the starting worker count, overriding the value a
// previous adaptive run persisted.
func (p *Pipeline) SetWorkers(n int) {
	p.coord.SetWorkers(n)
	p.pinned = true
}

// Cancel stops the running generation from starting new work.
func (p *Pipeline) Cancel() {
	p.coord.Cancel()
}

// GenerationConfig returns the configured target and strategy mix.
func (p *Pipeline) GenerationConfig() model.GenerationConfig {
	return model.GenerationConfig{
		TargetTotal: p.cfg.Generation.TargetTotal,
		StrategyMix: p.cfg.Generation.StrategyMix,
	}
}

// Generate runs one batch over docs and stores the run and its drafts.
func (p *Pipeline) Generate(ctx context.Context, docs []model.ConvertedDocument, gc model.GenerationConfig) *Result {
	ctx, traceID := trace.Ensure(ctx, "")
	r := &Result{TraceID: traceID}

	p.restoreWorkers()

	runID, err := p.db.InsertRun(traceID, len(docs), p.coord.Workers())
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Generate", Err: fmt.Errorf("recording run: %w", err)})
		return r
	}
	r.RunID = runID

	slog.Info("Step 1/2: Generating cards...", "trace_id", traceID, "documents", len(docs))
	res, runErr := p.coord.Run(ctx, batch.Input{Documents: docs, Config: gc})
	r.Batch = res

	step := StepResult{Name: "Generate", Err: runErr}
	if runErr == nil {
		step.Summary = fmt.Sprintf("%s: %d cards from %d/%d documents (%d throttled, %d timed out)",
			res.State, len(res.Cards), res.Progress.DocumentsDone, res.Progress.DocumentsTotal,
			res.Concurrency.ThrottleEvents, res.Concurrency.TimeoutEvents)
		if res.FirstError != nil {
			step.Summary += "; some documents failed: " + apperr.Message(res.FirstError)
		}
	}
	r.Steps = append(r.Steps, step)

	slog.Info("Step 2/2: Storing drafts...", "trace_id", traceID)
	r.Steps = append(r.Steps, p.store(runID, res))
	return r
}

func (p *Pipeline) store(runID int64, res *batch.Result) StepResult {
	outcome := database.RunOutcome{
		State:          string(res.State),
		Cards:          len(res.Cards),
		Workers:        res.Concurrency.ConfiguredWorkers,
		ThrottleEvents: res.Concurrency.ThrottleEvents,
		TimeoutEvents:  res.Concurrency.TimeoutEvents,
	}
	if res.FirstError != nil {
		outcome.FirstError = res.FirstError.Error()
	}

	if err := p.db.FinishRun(runID, outcome); err != nil {
		return StepResult{Name: "Store", Err: fmt.Errorf("finishing run: %w", err)}
	}
	if err := p.db.InsertDrafts(runID, res.Cards); err != nil {
		return StepResult{Name: "Store", Err: fmt.Errorf("storing drafts: %w", err)}
	}
	if p.cfg.Generation.Adaptive {
		if err := p.db.SetConfiguredWorkers(p.coord.Workers()); err != nil {
			slog.Warn("could not persist worker count", "error", err)
		}
	}
	return StepResult{
		Name:    "Store",
		Summary: fmt.Sprintf("Stored run %d with %d drafts", runID, len(res.Cards)),
	}
}

// restoreWorkers loads the worker count the previous adaptive run left.
func (p *Pipeline) restoreWorkers() {
	if p.pinned || !p.cfg.Generation.Adaptive {
		return
	}
	n, ok, err := p.db.GetConfiguredWorkers()
	if err != nil {
		slog.Warn("could not read persisted worker count", "error", err)
		return
	}
	if ok {
		p.coord.SetWorkers(n)
		p.metrics.SetConfiguredWorkers(n)
	}
}

// Push sends the stored drafts of runID to Anki and records the ledger.
func (p *Pipeline) Push(ctx context.Context, runID int64, mode anki.UpdateMode) *Result {
	r := &Result{RunID: runID}

	drafts, err := p.db.GetDrafts(runID)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Push", Err: fmt.Errorf("loading drafts: %w", err)})
		return r
	}
	if len(drafts) == 0 {
		r.Steps = append(r.Steps, StepResult{Name: "Push", Err: fmt.Errorf("run %d has no drafts", runID)})
		return r
	}

	res, err := p.gateway.Push(ctx, drafts, mode)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Push", Err: err})
		return r
	}
	r.Push = res
	r.TraceID = res.TraceID

	if _, err := p.db.InsertPushResult(runID, string(mode), res); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Push", Err: fmt.Errorf("recording push: %w", err)})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Push",
		Summary: fmt.Sprintf("Pushed %d/%d cards (%s, %d failed)", res.Succeeded, res.Total, mode, res.Failed),
	})
	return r
}

// Run generates from docs and pushes the result when any cards were made.
func (p *Pipeline) Run(ctx context.Context, docs []model.ConvertedDocument, gc model.GenerationConfig, mode anki.UpdateMode) *Result {
	r := p.Generate(ctx, docs, gc)
	if r.Err() != nil || r.Batch == nil || len(r.Batch.Cards) == 0 || r.Batch.State == batch.StateCancelled {
		return r
	}
	pushed := p.Push(ctx, r.RunID, mode)
	r.Steps = append(r.Steps, pushed.Steps...)
	r.Push = pushed.Push
	return r
}
