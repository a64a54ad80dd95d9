package cardgen

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy maps a generation style to its prompt and target note type.
type Strategy struct {
	Name         string
	SystemPrompt string
	NoteType     string
	// ImageGrounded strategies attach the source image to every draft.
	ImageGrounded bool
}

const (
	NoteTypeBasic = "Basic"
	NoteTypeCloze = "Cloze"
)

const answerRules = `- Back must follow a two-part structure:
  1) First line: "Answer: <one-line answer>"
  2) Then "Explanation:" with layered points on new lines
- Do not number the "Answer:" or "Explanation:" lines
- Split long explanations into short paragraphs on new lines
`

const commonRules = `- No explanations or extra text outside the JSON array
- Create 3-10 cards depending on content density unless told otherwise
- Generate cards in the language of the content
- For math use $formula$ inline and $$formula$$ for display; Anki renders LaTeX with MathJax
`

var basicPrompt = `You are an expert flashcard creator. Given Markdown content, extract the most important concepts and create question-answer flashcard pairs.

Rules:
- Create concise, clear questions that test understanding of key concepts
- Questions must be self-contained and test one specific, meaningful piece of knowledge
` + answerRules + `- Output ONLY a JSON array of objects with "Front" and "Back" fields
` + commonRules + `
Example output:
[
  {"Front": "What is photosynthesis?", "Back": "Answer: The process that converts light energy into chemical energy.\nExplanation:\nOccurs mainly in chloroplasts.\nProduces glucose and oxygen from CO2 and water."}
]
`

var clozePrompt = `You are an expert flashcard creator. Given Markdown content, create cloze deletion flashcards that test recall of key terms and concepts.

Rules:
- Use Anki cloze syntax: {{c1::answer}} for deletions
- Each card should have 1-3 cloze deletions numbered c1, c2, c3
- Target key terms, definitions, numbers or important facts
- Output ONLY a JSON array of objects with a "Text" field and an optional "Extra" field
- Extra is a layered explanation over several lines without numbering
` + commonRules + `
Example output:
[
  {"Text": "Photosynthesis converts {{c1::light energy}} into {{c2::chemical energy}}.", "Extra": "This process occurs in chloroplasts."}
]
`

var conceptPrompt = `You are an expert flashcard creator. Given Markdown content, identify the core concepts and create flashcards where the front is a concept name and the back is a detailed explanation.

Rules:
- Front: the concept name or phrase, kept short
- Focus on concepts that require understanding rather than simple facts
` + answerRules + `- Output ONLY a JSON array of objects with "Front" and "Back" fields
` + commonRules + `
Example output:
[
  {"Front": "Euler's Identity", "Back": "Answer: $e^{i\\pi} + 1 = 0$.\nExplanation:\nConnects $e$, $i$, $\\pi$, 1 and 0."}
]
`

var keyTermsPrompt = `You are an expert flashcard creator. Given Markdown content, extract key terms and create flashcards where the front is a term and the back holds its definition plus an example sentence in context.

Rules:
- Front: the key term or phrase
- Prefer domain-specific or technical terms over common vocabulary
` + answerRules + `- Output ONLY a JSON array of objects with "Front" and "Back" fields
` + commonRules + `
Example output:
[
  {"Front": "Chloroplast", "Back": "Answer: A plant-cell organelle where photosynthesis happens.\nExplanation:\nContains chlorophyll.\nExample: chloroplasts let leaves produce glucose from sunlight."}
]
`

var imageQAPrompt = `You are an expert flashcard creator. Given text extracted from an image or diagram, create flashcards that test recall of key visual elements, labels and relationships.

Rules:
- Focus on labeled parts, annotations and spatial relationships
- Front: a question asking to identify or recall one specific element
` + answerRules + `- Output ONLY a JSON array of objects with "Front" and "Back" fields
` + commonRules + `
Example output:
[
  {"Front": "In the cell diagram, which organelle produces energy?", "Back": "Answer: Mitochondria.\nExplanation:\nConverts nutrients into ATP."}
]
`

var singleChoicePrompt = `You are an expert flashcard creator. Given Markdown content, create single-choice question cards.

Rules:
- Output ONLY a JSON array of objects with "Front" and "Back" fields
- Front: the question followed by 4 options labeled A/B/C/D
- Exactly one option is correct
- Back: first line "Answer: <option letter>", then "Explanation:" with one key point per line
` + commonRules + `
Example output:
[
  {"Front": "What is the derivative of $x^3$?\n\nA. $2x^2$\nB. $3x^2$\nC. $x^2$\nD. $3x$", "Back": "Answer: B\nExplanation:\nPower rule: $nx^{n-1}$."}
]
`

var multipleChoicePrompt = `You are an expert flashcard creator. Given Markdown content, create multiple-choice question cards.

Rules:
- Output ONLY a JSON array of objects with "Front" and "Back" fields
- Front: the question followed by 4 to 5 options labeled A/B/C/D(/E)
- Each question has 2 or more correct options
- Back: first line "Answer: <all correct letters>", then "Explanation:" with one key point per line
` + commonRules + `
Example output:
[
  {"Front": "Which are roots of $x^2 - 5x + 6 = 0$?\n\nA. 1\nB. 2\nC. 3\nD. 6", "Back": "Answer: B, C\nExplanation:\n$(x-2)(x-3) = 0$."}
]
`

var strategies = map[string]Strategy{
	"basic":           {Name: "basic", SystemPrompt: basicPrompt, NoteType: NoteTypeBasic},
	"cloze":           {Name: "cloze", SystemPrompt: clozePrompt, NoteType: NoteTypeCloze},
	"concept":         {Name: "concept", SystemPrompt: conceptPrompt, NoteType: NoteTypeBasic},
	"key_terms":       {Name: "key_terms", SystemPrompt: keyTermsPrompt, NoteType: NoteTypeBasic},
	"single_choice":   {Name: "single_choice", SystemPrompt: singleChoicePrompt, NoteType: NoteTypeBasic},
	"multiple_choice": {Name: "multiple_choice", SystemPrompt: multipleChoicePrompt, NoteType: NoteTypeBasic},
	"image_qa":        {Name: "image_qa", SystemPrompt: imageQAPrompt, NoteType: NoteTypeBasic, ImageGrounded: true},
}

var aliases = map[string]string{
	"basic_qa":            "basic",
	"fill_blank":          "cloze",
	"concept_explanation": "concept",
	"image_occlusion":     "image_qa",
}

// Resolve returns the strategy for name. Aliases are followed and unknown
// names fall back to basic.
func Resolve(name string) Strategy {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	if s, ok := strategies[key]; ok {
		return s
	}
	return strategies["basic"]
}

// Known reports whether name is a strategy or alias.
func Known(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	_, ok := strategies[key]
	_, alias := aliases[key]
	return ok || alias
}

// StrategyNames lists the canonical strategy names.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prompt returns the system prompt, asking for exactly count cards when count > 0.
func (s Strategy) Prompt(count int) string {
	if count <= 0 {
		return s.SystemPrompt
	}
	return fmt.Sprintf("%s\nIMPORTANT: generate exactly %d cards.\n", s.SystemPrompt, count)
}
