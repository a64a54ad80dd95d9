package llm

import (
	"testing"
)

func TestParseJSONArrayPlain(t *testing.T) {
	items, err := ParseJSONArray(`[{"Front": "Q", "Back": "A"}, {"Front": "Q2"}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["Front"] != "Q" || first["Back"] != "A" {
		t.Errorf("unexpected first item: %v", first)
	}
}

func TestParseJSONArrayWithCodeFence(t *testing.T) {
	items, err := ParseJSONArray("```json\n[{\"Front\":\"Q\",\"Back\":\"A\"}]\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestParseJSONArrayWithPlainFence(t *testing.T) {
	items, err := ParseJSONArray("```\n[1, 2, 3]\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
}

func TestParseJSONArrayUnclosedFence(t *testing.T) {
	items, err := ParseJSONArray("```json\n[{\"Front\": \"Q\"}]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestParseJSONArrayEmbeddedInProse(t *testing.T) {
	text := `Here are your cards: [{"Front": "what is [x]?", "Back": "a \"bracket\" ]"}] Enjoy!`
	items, err := ParseJSONArray(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item := items[0].(map[string]any)
	if item["Front"] != "what is [x]?" {
		t.Errorf("unexpected Front: %v", item["Front"])
	}
}

func TestParseJSONArrayRejectsObject(t *testing.T) {
	if _, err := ParseJSONArray(`{"Front": "Q"}`); err == nil {
		t.Error("expected error for bare object")
	}
}

func TestParseJSONArrayInvalid(t *testing.T) {
	if _, err := ParseJSONArray("not json at all"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseJSONArrayEmpty(t *testing.T) {
	if _, err := ParseJSONArray("  \n "); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestFirstJSONArraySkipsUnbalanced(t *testing.T) {
	got, ok := FirstJSONArray(`note [unclosed and then [1,2]`)
	if !ok {
		t.Fatal("expected an array")
	}
	// the first '[' never closes, so the scan restarts from the next one
	if got != "[1,2]" {
		t.Errorf("expected [1,2], got %q", got)
	}
}

func TestParseJSONArrayObjectWrappingArray(t *testing.T) {
	if _, err := ParseJSONArray(`{"cards": [{"Front": "Q"}]}`); err == nil {
		t.Error("expected error for object wrapping an array")
	}
}

func TestParseJSONArrayFencedWithProse(t *testing.T) {
	items, err := ParseJSONArray("```json\nCards below:\n[{\"Front\": \"Q\"}]\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestParseJSONArrayFollowedByProse(t *testing.T) {
	items, err := ParseJSONArray("[{\"Front\":\"Q\",\"Back\":\"A\"}]\n\nLet me know if you need more cards.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestParseJSONArrayProseAfterClosedFence(t *testing.T) {
	items, err := ParseJSONArray("```json\n[{\"Front\":\"Q\"}, {\"Front\":\"Q2\"}]\n```\nThese cover the key points.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		fenced bool
	}{
		{"no fence", "[1]", "[1]", false},
		{"tagged", "```json\n[1]\n```", "[1]", true},
		{"trailing prose", "```\n[1]\n```\nmore text", "[1]", true},
		{"unclosed", "```json\n[1]", "[1]", true},
		{"single line", "```[1]```", "[1]", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fenced := StripCodeFence(tt.input)
			if got != tt.want || fenced != tt.fenced {
				t.Errorf("StripCodeFence(%q) = %q, %v; want %q, %v", tt.input, got, fenced, tt.want, tt.fenced)
			}
		})
	}
}
