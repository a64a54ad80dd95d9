package anki

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/metrics"
	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

// UpdateMode decides whether a push creates, updates or upserts notes.
type UpdateMode string

const (
	CreateOnly     UpdateMode = "create_only"
	UpdateOnly     UpdateMode = "update_only"
	CreateOrUpdate UpdateMode = "create_or_update"
)

// ParseUpdateMode validates a mode name; "" means CreateOnly.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch m := UpdateMode(s); m {
	case "":
		return CreateOnly, nil
	case CreateOnly, UpdateOnly, CreateOrUpdate:
		return m, nil
	}
	return "", apperr.New(apperr.ConfigInvalid, "", "unknown update mode %q (want create_only, update_only or create_or_update)", s)
}

// Backend is the subset of AnkiConnect the gateway uses.
type Backend interface {
	DeckNames(ctx context.Context) ([]string, error)
	CreateDeck(ctx context.Context, name string) error
	ModelNames(ctx context.Context) ([]string, error)
	ModelFieldNames(ctx context.Context, modelName string) ([]string, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	AddNote(ctx context.Context, note Note) (int64, error)
	UpdateNoteFields(ctx context.Context, id int64, note Note) error
}

// Gateway validates drafts and writes them to Anki.
type Gateway struct {
	backend Backend
	metrics *metrics.Metrics
}

// NewGateway creates a gateway over backend.
func NewGateway(backend Backend) *Gateway {
	return &Gateway{backend: backend}
}

// WithMetrics attaches collectors; nil disables recording.
func (g *Gateway) WithMetrics(m *metrics.Metrics) *Gateway {
	g.metrics = m
	return g
}

// Push writes cards in order. Per-card failures are recorded in the result
// and never stop the push; the error return is reserved for an invalid mode.
func (g *Gateway) Push(ctx context.Context, cards []model.CardDraft, mode UpdateMode) (*model.PushResult, error) {
	var seed string
	if len(cards) > 0 {
		seed = cards[0].TraceID
	}
	ctx, traceID := trace.Ensure(ctx, seed)

	switch mode {
	case CreateOnly, UpdateOnly, CreateOrUpdate:
	default:
		return nil, apperr.New(apperr.ConfigInvalid, traceID, "unknown update mode %q", mode)
	}

	schema := newSchemaCache(g.backend)
	result := &model.PushResult{
		Total:   len(cards),
		Results: make([]model.CardPushStatus, 0, len(cards)),
		TraceID: traceID,
	}

	for i, card := range cards {
		id, err := g.pushOne(ctx, schema, card, mode, traceID)
		if err != nil {
			slog.Warn("card push failed", "index", i, "trace_id", traceID, "error", err)
			result.Results = append(result.Results, model.CardPushStatus{Index: i, Success: false, Error: apperr.Message(err)})
			result.Failed++
			continue
		}
		result.Results = append(result.Results, model.CardPushStatus{Index: i, NoteID: &id, Success: true})
		result.Succeeded++
	}

	ratio := result.SuccessRatio()
	slog.Info("push completed",
		"trace_id", traceID,
		"mode", mode,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"success_ratio", fmt.Sprintf("%.2f", ratio))
	g.metrics.RecordPush(string(mode), result.Succeeded, result.Failed, ratio)

	return result, nil
}

func (g *Gateway) pushOne(ctx context.Context, schema *schemaCache, card model.CardDraft, mode UpdateMode, traceID string) (int64, error) {
	if card.TraceID != "" {
		traceID = card.TraceID
		ctx = trace.WithID(ctx, traceID)
	}

	firstField, err := schema.validate(ctx, card, traceID)
	if err != nil {
		return 0, err
	}
	note := NoteFromDraft(card)

	if mode == CreateOnly {
		return g.backend.AddNote(ctx, note)
	}

	var existing []int64
	if firstField != "" {
		query := DuplicateQuery(card.NoteType, card.DeckName, firstField, card.Field(firstField))
		existing, err = g.backend.FindNotes(ctx, query)
		if err != nil {
			return 0, err
		}
		if len(existing) > 1 {
			slog.Debug("multiple notes match, updating the first", "trace_id", traceID, "query", query, "matches", len(existing))
		}
	}

	if len(existing) > 0 {
		if err := g.backend.UpdateNoteFields(ctx, existing[0], note); err != nil {
			return 0, err
		}
		return existing[0], nil
	}
	if mode == UpdateOnly {
		return 0, apperr.New(apperr.AnkiConnectError, traceID, "no existing note to update")
	}
	return g.backend.AddNote(ctx, note)
}
