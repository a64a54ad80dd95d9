package cardgen

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/llm"
	"github.com/TobiSchelling/ankiforge/internal/model"
)

var clozePattern = regexp.MustCompile(`\{\{c\d+::.*?\}\}`)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
	".gif":  true,
}

// ClozeField is the note field that must carry cloze markup.
const ClozeField = "Text"

// ValidateCloze reports whether text holds at least one {{cN::...}} deletion.
func ValidateCloze(text string) bool {
	return clozePattern.MatchString(text)
}

// IsImagePath reports whether path has a recognised image extension.
func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ParseCards extracts the JSON array of cards from raw model output.
func ParseCards(raw, traceID string) ([]any, error) {
	items, err := llm.ParseJSONArray(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.LLMParseError, traceID, err, "failed to parse LLM output as JSON: %v", err)
	}
	return items, nil
}

// DraftTemplate holds the values shared by every draft built from one response.
type DraftTemplate struct {
	Deck     string
	NoteType string
	Tags     []string
	TraceID  string
	Strategy string
	Source   string
}

// BuildDrafts turns parsed items into drafts. Non-object items are skipped,
// and Cloze drafts without valid cloze markup are dropped.
func BuildDrafts(items []any, tmpl DraftTemplate) []model.CardDraft {
	var drafts []model.CardDraft
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			slog.Warn("skipping non-object card", "index", i, "trace_id", tmpl.TraceID)
			continue
		}

		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			fields[k] = stringify(v)
		}

		if tmpl.NoteType == NoteTypeCloze && !ValidateCloze(fields[ClozeField]) {
			slog.Warn("skipping card with invalid cloze syntax", "index", i, "trace_id", tmpl.TraceID)
			continue
		}

		drafts = append(drafts, model.CardDraft{
			Fields:   fields,
			NoteType: tmpl.NoteType,
			DeckName: tmpl.Deck,
			Tags:     append([]string(nil), tmpl.Tags...),
			Options:  model.DefaultCardOptions(tmpl.Deck),
			TraceID:  tmpl.TraceID,
			Strategy: tmpl.Strategy,
			Source:   tmpl.Source,
		})
	}
	return drafts
}

// AttachImage appends the source image to the Back field of every draft and
// registers it as picture media. Paths without an image extension are ignored.
func AttachImage(drafts []model.CardDraft, sourcePath string) {
	if sourcePath == "" || !IsImagePath(sourcePath) {
		return
	}
	filename := filepath.Base(sourcePath)
	tag := fmt.Sprintf(`<img src="%s">`, filename)
	for i := range drafts {
		d := &drafts[i]
		if d.Fields == nil {
			d.Fields = map[string]string{}
		}
		if back := d.Fields["Back"]; back != "" {
			d.Fields["Back"] = back + "<br>" + tag
		} else {
			d.Fields["Back"] = tag
		}
		d.Media.Picture = append(d.Media.Picture, model.MediaItem{
			Filename: filename,
			Path:     sourcePath,
			Fields:   []string{"Back"},
		})
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
