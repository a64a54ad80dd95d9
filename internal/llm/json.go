package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fenceOpen = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\n?")

// StripCodeFence returns the body of a markdown code block that opens the
// text. The language tag and closing fence are optional; anything after the
// closing fence is dropped.
func StripCodeFence(text string) (string, bool) {
	text = strings.TrimSpace(text)
	loc := fenceOpen.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	body := text[loc[1]:]
	if end := closingFence(body); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// closingFence returns the offset of the first line that is only a closing
// fence, or of a fence ending the last line, or -1.
func closingFence(body string) int {
	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		if strings.TrimSpace(line) == "```" {
			return offset
		}
		offset += len(line)
	}
	trimmed := strings.TrimRight(body, " \t\r\n")
	if strings.HasSuffix(trimmed, "```") {
		return len(trimmed) - 3
	}
	return -1
}

// FirstJSONArray returns the first balanced top-level JSON array in text.
// Brackets inside string literals are ignored.
func FirstJSONArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	for start >= 0 {
		if end := matchBracket(text, start); end > 0 {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseJSONArray parses an LLM response that should hold a JSON array,
// handling markdown code blocks and surrounding prose.
func ParseJSONArray(text string) ([]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	body, _ := StripCodeFence(text)
	// An object is never searched for a nested array.
	if !strings.HasPrefix(body, "{") {
		if arr, ok := FirstJSONArray(body); ok {
			body = arr
		}
	}

	var value any
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		return nil, fmt.Errorf("parsing LLM response as JSON: %w", err)
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array, got %T", value)
	}
	return items, nil
}
