// Package cardgen turns converted documents into flashcard drafts.
package cardgen

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

const (
	DefaultDeck = "Default"
	DefaultTag  = "ankismart"
)

// Chatter is the completion call the generator needs.
type Chatter interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Request describes the generation work for one document.
type Request struct {
	Document   model.ConvertedDocument
	Allocation model.Allocation
	Deck       string
	Tags       []string
	AutoSplit  bool
	// SplitThreshold of 0 uses DefaultSplitThreshold.
	SplitThreshold int
	// Stop is polled before each chunk; true ends generation early.
	Stop func() bool
}

// Generator runs one LLM call per chunk per strategy and collects drafts.
type Generator struct {
	llm Chatter

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator using llm for completions.
func NewGenerator(llm Chatter) *Generator {
	return &Generator{llm: llm, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// WithRand replaces the source used for sampling over-target results.
func (g *Generator) WithRand(rng *rand.Rand) *Generator {
	g.mu.Lock()
	g.rng = rng
	g.mu.Unlock()
	return g
}

// Generate produces drafts for one document. Chunk failures are logged and
// skipped; an error is returned only when nothing was produced.
func (g *Generator) Generate(ctx context.Context, req Request) ([]model.CardDraft, error) {
	doc := req.Document
	ctx, traceID := trace.Ensure(ctx, doc.TraceID)

	deck := req.Deck
	if deck == "" {
		deck = DefaultDeck
	}
	tags := req.Tags
	if len(tags) == 0 {
		tags = []string{DefaultTag}
	}

	chunks := []string{doc.Content}
	if req.AutoSplit {
		threshold := req.SplitThreshold
		if threshold <= 0 {
			threshold = DefaultSplitThreshold
		}
		if len(doc.Content) > threshold {
			chunks = SplitMarkdown(doc.Content, threshold)
			slog.Info("split document",
				"file", doc.FileName,
				"trace_id", traceID,
				"length", len(doc.Content),
				"chunks", len(chunks))
		}
	}

	var drafts []model.CardDraft
	var firstErr error
	stopped := false
strategies:
	for _, sc := range req.Allocation {
		strategy := Resolve(sc.Strategy)
		system := strategy.Prompt(sc.Count)
		tmpl := DraftTemplate{
			Deck:     deck,
			NoteType: strategy.NoteType,
			Tags:     tags,
			TraceID:  traceID,
			Strategy: strategy.Name,
			Source:   doc.FileName,
		}

		for i, chunk := range chunks {
			if req.Stop != nil && req.Stop() {
				slog.Info("generation stopped", "file", doc.FileName, "trace_id", traceID)
				stopped = true
				break strategies
			}

			built, err := g.generateChunk(ctx, system, chunk, tmpl)
			if err != nil {
				slog.Warn("chunk generation failed",
					"file", doc.FileName,
					"trace_id", traceID,
					"strategy", strategy.Name,
					"chunk", i+1,
					"chunks", len(chunks),
					"error", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if strategy.ImageGrounded {
				AttachImage(built, doc.SourcePath)
			}
			drafts = append(drafts, built...)
		}
	}

	if !stopped && len(drafts) == 0 && firstErr != nil {
		return nil, firstErr
	}

	if target := req.Allocation.Total(); target > 0 && len(drafts) > target {
		slog.Debug("sampling drafts down to target",
			"file", doc.FileName,
			"trace_id", traceID,
			"generated", len(drafts),
			"target", target)
		drafts = g.sample(drafts, target)
	}

	slog.Info("card generation completed", "file", doc.FileName, "trace_id", traceID, "cards", len(drafts))
	return drafts, nil
}

func (g *Generator) generateChunk(ctx context.Context, system, chunk string, tmpl DraftTemplate) ([]model.CardDraft, error) {
	raw, err := g.llm.Chat(ctx, system, chunk)
	if err != nil {
		return nil, err
	}
	items, err := ParseCards(raw, tmpl.TraceID)
	if err != nil {
		return nil, err
	}
	return BuildDrafts(items, tmpl), nil
}

// sample returns a uniformly random subset of n drafts.
func (g *Generator) sample(drafts []model.CardDraft, n int) []model.CardDraft {
	g.mu.Lock()
	g.rng.Shuffle(len(drafts), func(i, j int) { drafts[i], drafts[j] = drafts[j], drafts[i] })
	g.mu.Unlock()
	return drafts[:n]
}
