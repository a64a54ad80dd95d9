package cardgen

import (
	"strings"
	"testing"
)

func TestSplitMarkdownUnderThreshold(t *testing.T) {
	chunks := SplitMarkdown("short", 100)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("expected single unchanged chunk, got %q", chunks)
	}
}

func TestSplitMarkdownPacksParagraphs(t *testing.T) {
	p := strings.Repeat("x", 10)
	content := p + "\n\n" + p + "\n\n" + p
	chunks := SplitMarkdown(content, 25)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if len(c) > 25 {
			t.Errorf("chunk exceeds threshold: %d", len(c))
		}
	}
	if strings.Join(chunks, "\n\n") != content {
		t.Errorf("chunks do not reassemble to the original content")
	}
}

func TestSplitMarkdownKeepsFencedBlockWhole(t *testing.T) {
	fence := "```go\nline1\n\nline2\n```"
	content := "para one.\n\n" + fence + "\n\npara three."
	chunks := SplitMarkdown(content, 20)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != fence {
		t.Errorf("fenced block was split: %q", chunks[1])
	}
}

func TestSplitMarkdownUnclosedFenceJoinsLastChunk(t *testing.T) {
	content := "aaaa aaaa.\n\nbbbb bbbb.\n\n```\ncode\n\nmore"
	chunks := SplitMarkdown(content, 12)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != "bbbb bbbb.\n\n```\ncode\n\nmore" {
		t.Errorf("unexpected last chunk: %q", chunks[1])
	}
}

func TestSplitMarkdownSentenceFallback(t *testing.T) {
	chunks := SplitMarkdown("One two. Three four. Five six.", 12)
	want := []string{"One two.", "Three four.", "Five six."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %q", len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitMarkdownHardCutsLongSentence(t *testing.T) {
	chunks := SplitMarkdown("abcdefghijklmnopqrstuvwxyz", 10)
	want := []string{"abcdefghij", "klmnopqrst", "uvwxyz"}
	if strings.Join(chunks, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", chunks, want)
	}
}

func TestSplitMarkdownHardCutRespectsRunes(t *testing.T) {
	content := strings.Repeat("学", 10) // 30 bytes, no terminators
	for _, c := range SplitMarkdown(content, 8) {
		if len(c)%3 != 0 {
			t.Errorf("chunk split a rune: %q", c)
		}
	}
}
