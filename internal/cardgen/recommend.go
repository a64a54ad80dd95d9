package cardgen

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/ankiforge/internal/model"
)

// Document types detected by Recommend.
const (
	DocTextbook = "textbook"
	DocPaper    = "paper"
	DocNotes    = "notes"
	DocGeneral  = "general"
)

const recommendSampleLength = 3000

var (
	textbookPatterns = compileAll(
		`第[一二三四五六七八九十\d]+章`,
		`chapter\s+\d+`,
		`定义[:：]`,
		`定理[:：]`,
		`例题[:：]`,
		`习题`,
		`练习`,
		`exercises?`,
	)
	paperPatterns = compileAll(
		`abstract`, `摘要`,
		`introduction`, `引言`,
		`methodology`, `方法`,
		`conclusion`, `结论`,
		`references`, `参考文献`,
	)
	notesPatterns = compileAll(
		`笔记`, `notes?`,
		`总结`, `summary`,
		`要点`, `key\s+points?`,
	)

	definitionPattern = regexp.MustCompile(`(?i)定义[:：]|definition:`)
	examplePattern    = regexp.MustCompile(`(?i)例[题如]|example`)
)

// Recommendation is a suggested strategy mix for a document.
type Recommendation struct {
	DocumentType string                `json:"document_type"`
	StrategyMix  []model.StrategyRatio `json:"strategy_mix"`
	Reasoning    string                `json:"reasoning"`
	Confidence   float64               `json:"confidence"`
}

// Recommend picks a strategy mix from the first few thousand characters of
// content using keyword heuristics. Ratios are normalised to sum to about 100.
func Recommend(content string) Recommendation {
	sample := content
	if r := []rune(content); len(r) > recommendSampleLength {
		sample = string(r[:recommendSampleLength])
	}

	rec := baseRecommendation(detectDocumentType(sample))

	if definitionPattern.MatchString(sample) {
		bump(rec.StrategyMix, "concept_explanation")
	}
	if examplePattern.MatchString(sample) {
		bump(rec.StrategyMix, "basic_qa")
	}
	lists := strings.Count(sample, "\n- ") + strings.Count(sample, "\n* ") + strings.Count(sample, "\n1. ")
	if lists > 5 {
		bump(rec.StrategyMix, "fill_blank")
	}

	var total float64
	for _, item := range rec.StrategyMix {
		total += item.Ratio
	}
	for i := range rec.StrategyMix {
		rec.StrategyMix[i].Ratio = float64(int(rec.StrategyMix[i].Ratio * 100 / total))
	}
	return rec
}

func detectDocumentType(content string) string {
	scores := []struct {
		kind  string
		score int
	}{
		{DocTextbook, countMatches(textbookPatterns, content)},
		{DocPaper, countMatches(paperPatterns, content)},
		{DocNotes, countMatches(notesPatterns, content)},
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.score > best.score {
			best = s
		}
	}
	if best.score == 0 {
		return DocGeneral
	}
	return best.kind
}

func baseRecommendation(docType string) Recommendation {
	mix := func(pairs ...any) []model.StrategyRatio {
		out := make([]model.StrategyRatio, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			out = append(out, model.StrategyRatio{Strategy: pairs[i].(string), Ratio: float64(pairs[i+1].(int))})
		}
		return out
	}

	switch docType {
	case DocTextbook:
		return Recommendation{
			DocumentType: docType,
			StrategyMix:  mix("concept_explanation", 30, "basic_qa", 25, "fill_blank", 20, "key_terms", 15, "single_choice", 10),
			Reasoning:    "Textbook: focus on concept explanations and basic Q&A, with cloze cards to reinforce key points.",
			Confidence:   0.8,
		}
	case DocPaper:
		return Recommendation{
			DocumentType: docType,
			StrategyMix:  mix("concept_explanation", 35, "key_terms", 30, "basic_qa", 25, "fill_blank", 10),
			Reasoning:    "Paper: emphasise concept understanding and key terminology.",
			Confidence:   0.75,
		}
	case DocNotes:
		return Recommendation{
			DocumentType: docType,
			StrategyMix:  mix("basic_qa", 35, "fill_blank", 30, "key_terms", 20, "concept_explanation", 15),
			Reasoning:    "Notes: favour quick review with Q&A and cloze cards.",
			Confidence:   0.7,
		}
	default:
		return Recommendation{
			DocumentType: DocGeneral,
			StrategyMix:  mix("basic_qa", 30, "concept_explanation", 25, "fill_blank", 20, "key_terms", 15, "single_choice", 10),
			Reasoning:    "General document: a balanced mix of strategies.",
			Confidence:   0.6,
		}
	}
}

func bump(mix []model.StrategyRatio, strategy string) {
	for i := range mix {
		if mix[i].Strategy == strategy {
			mix[i].Ratio += 5
			return
		}
	}
}

func countMatches(patterns []*regexp.Regexp, content string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(content) {
			n++
		}
	}
	return n
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}
