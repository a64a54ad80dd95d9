package anki

import (
	"context"
	"slices"
	"sync"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/cardgen"
	"github.com/TobiSchelling/ankiforge/internal/model"
)

// schemaCache memoises the live Anki schema for one push. The deck set is
// guarded so that a missing deck is created at most once.
type schemaCache struct {
	backend Backend

	mu     sync.Mutex
	decks  map[string]bool
	models map[string]bool
	fields map[string][]string
}

func newSchemaCache(b Backend) *schemaCache {
	return &schemaCache{backend: b, fields: map[string][]string{}}
}

// ensureDeck creates deck if Anki does not know it yet.
func (s *schemaCache) ensureDeck(ctx context.Context, deck, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.decks == nil {
		names, err := s.backend.DeckNames(ctx)
		if err != nil {
			return err
		}
		s.decks = make(map[string]bool, len(names))
		for _, n := range names {
			s.decks[n] = true
		}
	}
	if s.decks[deck] {
		return nil
	}
	if err := s.backend.CreateDeck(ctx, deck); err != nil {
		return apperr.Wrap(apperr.DeckNotFound, traceID, err, "Deck not found: %s (%s)", deck, apperr.Message(err))
	}
	s.decks[deck] = true
	return nil
}

func (s *schemaCache) hasModel(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.models == nil {
		names, err := s.backend.ModelNames(ctx)
		if err != nil {
			return false, err
		}
		s.models = make(map[string]bool, len(names))
		for _, n := range names {
			s.models[n] = true
		}
	}
	return s.models[name], nil
}

func (s *schemaCache) modelFields(ctx context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.fields[name]; ok {
		return f, nil
	}
	f, err := s.backend.ModelFieldNames(ctx, name)
	if err != nil {
		return nil, err
	}
	s.fields[name] = f
	return f, nil
}

// validate checks card against the live schema, creating its deck when
// missing, and returns the note type's first field name.
func (s *schemaCache) validate(ctx context.Context, card model.CardDraft, traceID string) (string, error) {
	if err := s.ensureDeck(ctx, card.DeckName, traceID); err != nil {
		return "", err
	}

	ok, err := s.hasModel(ctx, card.NoteType)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.ModelNotFound, traceID, "Note type not found: %s", card.NoteType)
	}

	fields, err := s.modelFields(ctx, card.NoteType)
	if err != nil {
		return "", err
	}
	var first string
	if len(fields) > 0 {
		first = fields[0]
		if card.Field(first) == "" {
			return "", apperr.New(apperr.RequiredFieldMissing, traceID, "Required field missing: %s", first)
		}
	}

	if card.NoteType == cardgen.NoteTypeCloze && !cardgen.ValidateCloze(card.Field(cardgen.ClozeField)) {
		return "", apperr.New(apperr.ClozeSyntaxInvalid, traceID, "Cloze card missing valid {{cN::...}} syntax")
	}

	for _, items := range [][]model.MediaItem{card.Media.Audio, card.Media.Video, card.Media.Picture} {
		if i := slices.IndexFunc(items, func(m model.MediaItem) bool { return !m.HasSource() }); i >= 0 {
			return "", apperr.New(apperr.MediaInvalid, traceID, "Media item '%s' has no source (data/path/url)", items[i].Filename)
		}
	}

	return first, nil
}
