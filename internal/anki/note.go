package anki

import "github.com/TobiSchelling/ankiforge/internal/model"

// Note is the AnkiConnect note payload for addNote.
type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
	Options   model.CardOptions `json:"options"`
	Audio     []model.MediaItem `json:"audio,omitempty"`
	Video     []model.MediaItem `json:"video,omitempty"`
	Picture   []model.MediaItem `json:"picture,omitempty"`
}

type noteUpdate struct {
	ID      int64             `json:"id"`
	Fields  map[string]string `json:"fields"`
	Audio   []model.MediaItem `json:"audio,omitempty"`
	Video   []model.MediaItem `json:"video,omitempty"`
	Picture []model.MediaItem `json:"picture,omitempty"`
}

// NoteFromDraft converts a draft into an addNote payload.
func NoteFromDraft(card model.CardDraft) Note {
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	return Note{
		DeckName:  card.DeckName,
		ModelName: card.NoteType,
		Fields:    card.Fields,
		Tags:      tags,
		Options:   card.Options,
		Audio:     card.Media.Audio,
		Video:     card.Media.Video,
		Picture:   card.Media.Picture,
	}
}
