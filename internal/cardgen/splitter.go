package cardgen

import (
	"strings"
	"unicode/utf8"
)

// DefaultSplitThreshold is the document size, in bytes, above which content
// is split before generation.
const DefaultSplitThreshold = 70000

type block struct {
	text   string
	fenced bool
}

// SplitMarkdown splits content into chunks of at most threshold bytes,
// packing whole paragraphs. Fenced code blocks are never split; an unclosed
// fence is appended to the last chunk unchanged. Only a single paragraph
// larger than threshold is split by sentence, and a sentence that still does
// not fit is cut hard.
func SplitMarkdown(content string, threshold int) []string {
	if threshold <= 0 || len(content) <= threshold {
		return []string{content}
	}

	blocks, tail := paragraphBlocks(content)

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) > threshold {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, b := range blocks {
		if b.fenced || len(b.text) <= threshold {
			add(b.text, "\n\n")
			continue
		}
		flush()
		for _, s := range splitSentences(b.text, threshold) {
			add(s, "")
		}
		flush()
	}
	flush()

	if tail != "" {
		if len(chunks) == 0 {
			return []string{tail}
		}
		chunks[len(chunks)-1] += "\n\n" + tail
	}
	return chunks
}

// paragraphBlocks groups "\n\n"-separated paragraphs so that every fenced
// code block stays in one block. An unclosed fence is returned as tail.
func paragraphBlocks(content string) ([]block, string) {
	var blocks []block
	var pending []string
	inFence := false

	for _, part := range strings.Split(content, "\n\n") {
		toggles := fenceMarkers(part)
		if !inFence && toggles%2 == 0 {
			if toggles > 0 {
				blocks = append(blocks, block{text: part, fenced: true})
			} else if strings.TrimSpace(part) != "" {
				blocks = append(blocks, block{text: part})
			}
			continue
		}

		pending = append(pending, part)
		if toggles%2 == 1 {
			inFence = !inFence
		}
		if !inFence {
			blocks = append(blocks, block{text: strings.Join(pending, "\n\n"), fenced: true})
			pending = nil
		}
	}

	return blocks, strings.Join(pending, "\n\n")
}

func fenceMarkers(part string) int {
	n := 0
	for _, line := range strings.Split(part, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			n++
		}
	}
	return n
}

// splitSentences breaks text after sentence terminators, cutting any single
// sentence longer than limit at rune boundaries.
func splitSentences(text string, limit int) []string {
	var out []string
	start := 0
	for i, r := range text {
		if !isTerminator(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		// ASCII terminators only end a sentence before whitespace
		if r < utf8.RuneSelf && end < len(text) && !isSpace(text[end]) {
			continue
		}
		for end < len(text) && isSpace(text[end]) {
			end++
		}
		if end > start {
			out = append(out, hardCut(text[start:end], limit)...)
			start = end
		}
	}
	if start < len(text) {
		out = append(out, hardCut(text[start:], limit)...)
	}
	return out
}

func hardCut(s string, limit int) []string {
	var out []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			_, size := utf8.DecodeRuneInString(s)
			cut = size
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
