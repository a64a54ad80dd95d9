package model

// SourceFormat names the format a document was converted from.
type SourceFormat string

const (
	FormatMarkdown SourceFormat = "markdown"
	FormatText     SourceFormat = "text"
	FormatDOCX     SourceFormat = "docx"
	FormatPPTX     SourceFormat = "pptx"
	FormatPDF      SourceFormat = "pdf"
	FormatImage    SourceFormat = "image"
)

// ConvertedDocument is the markdown produced by an upstream converter.
type ConvertedDocument struct {
	Content      string
	SourceFormat SourceFormat
	SourcePath   string
	TraceID      string
	FileName     string
}

// StrategyRatio is one entry of a user-chosen strategy mix.
type StrategyRatio struct {
	Strategy string  `yaml:"strategy" json:"strategy"`
	Ratio    float64 `yaml:"ratio" json:"ratio"`
}

// GenerationConfig describes one generation run.
type GenerationConfig struct {
	TargetTotal int
	StrategyMix []StrategyRatio
}

// StrategyCount is the number of cards to produce for one strategy.
type StrategyCount struct {
	Strategy string
	Count    int
}

// Allocation is an ordered strategy -> count mapping.
type Allocation []StrategyCount

// Total returns the sum of all counts.
func (a Allocation) Total() int {
	n := 0
	for _, sc := range a {
		n += sc.Count
	}
	return n
}

// Get returns the count for strategy, or 0.
func (a Allocation) Get(strategy string) int {
	for _, sc := range a {
		if sc.Strategy == strategy {
			return sc.Count
		}
	}
	return 0
}

// Map returns the allocation as a plain map.
func (a Allocation) Map() map[string]int {
	m := make(map[string]int, len(a))
	for _, sc := range a {
		m[sc.Strategy] = sc.Count
	}
	return m
}

// MediaItem is a file attached to a note.
type MediaItem struct {
	Filename string   `json:"filename"`
	Path     string   `json:"path,omitempty"`
	URL      string   `json:"url,omitempty"`
	Data     string   `json:"data,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

// HasSource reports whether the item declares a path, inline data or URL.
func (m MediaItem) HasSource() bool {
	return m.Path != "" || m.URL != "" || m.Data != ""
}

// MediaAttachments groups media by kind.
type MediaAttachments struct {
	Audio   []MediaItem `json:"audio,omitempty"`
	Video   []MediaItem `json:"video,omitempty"`
	Picture []MediaItem `json:"picture,omitempty"`
}

// DuplicateScopeOptions mirrors AnkiConnect's duplicateScopeOptions.
type DuplicateScopeOptions struct {
	DeckName       string `json:"deckName"`
	CheckChildren  bool   `json:"checkChildren"`
	CheckAllModels bool   `json:"checkAllModels"`
}

// CardOptions mirrors AnkiConnect's note options.
type CardOptions struct {
	AllowDuplicate        bool                  `json:"allowDuplicate"`
	DuplicateScope        string                `json:"duplicateScope"`
	DuplicateScopeOptions DuplicateScopeOptions `json:"duplicateScopeOptions"`
}

// DefaultCardOptions returns the options used for freshly generated drafts.
func DefaultCardOptions(deck string) CardOptions {
	return CardOptions{
		DuplicateScope:        "deck",
		DuplicateScopeOptions: DuplicateScopeOptions{DeckName: deck},
	}
}

// CardDraft is an unpersisted candidate flashcard.
type CardDraft struct {
	Fields   map[string]string `json:"fields"`
	NoteType string            `json:"noteType"`
	DeckName string            `json:"deckName"`
	Tags     []string          `json:"tags"`
	Options  CardOptions       `json:"options"`
	Media    MediaAttachments  `json:"media"`
	TraceID  string            `json:"traceId"`
	Strategy string            `json:"strategy,omitempty"`
	Source   string            `json:"source,omitempty"`
}

// Field returns the value of the named field, or "".
func (c CardDraft) Field(name string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[name]
}

// CardPushStatus is the outcome for one draft; Index correlates with the
// position in the pushed list.
type CardPushStatus struct {
	Index   int    `json:"index"`
	NoteID  *int64 `json:"noteId,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PushResult summarises a push run. Succeeded+Failed may be below Total.
type PushResult struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []CardPushStatus `json:"results"`
	TraceID   string           `json:"traceId"`
}

// SuccessRatio returns Succeeded/Total, or 0 for an empty push.
func (r *PushResult) SuccessRatio() float64 {
	if r == nil || r.Total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Total)
}
