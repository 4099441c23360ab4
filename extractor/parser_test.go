package extractor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func userLine(text string) string {
	return `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"` + text + `"}]},"timestamp":"2026-08-01T10:00:00Z"}`
}

func assistantLine(text string) string {
	return `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"` + text + `"}]},"timestamp":"2026-08-01T10:00:05Z"}`
}

func TestParseTranscriptKeepsTextTurns(t *testing.T) {
	path := writeTranscript(t,
		userLine("use sqlite here"),
		assistantLine("agreed, sqlite it is"),
	)

	turns, err := ParseTranscript(path)
	if err != nil {
		t.Fatalf("ParseTranscript: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Text != "use sqlite here" {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != "assistant" {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}
}

func TestParseTranscriptSkipsNonTextAndMalformed(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"system","message":{"role":"system","content":[{"type":"text","text":"boot"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1"}]}}`,
		`not json at all`,
		`{"type":"user"}`,
		"",
		userLine("the only real turn"),
	)

	turns, err := ParseTranscript(path)
	if err != nil {
		t.Fatalf("ParseTranscript: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Text != "the only real turn" {
		t.Errorf("unexpected turn: %+v", turns[0])
	}
}

func TestParseTranscriptJoinsMultipleTextBlocks(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"part one"},{"type":"tool_use","id":"x"},{"type":"text","text":"part two"}]}}`,
	)

	turns, err := ParseTranscript(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Text != "part one\npart two" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]Turn{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "hi"},
	})
	want := "[USER]\nhello\n\n---\n\n[ASSISTANT]\nhi"
	if got != want {
		t.Errorf("FormatTranscript = %q, want %q", got, want)
	}
}

func TestTruncateToRecentKeepsTrailingWindow(t *testing.T) {
	turns := []Turn{
		{Role: "user", Text: strings.Repeat("a", 200)},
		{Role: "assistant", Text: "keep me"},
		{Role: "user", Text: "and me"},
	}

	got := TruncateToRecent(turns, 80)
	if strings.Contains(got, "aaa") {
		t.Error("oldest turn should have been dropped")
	}
	if !strings.Contains(got, "keep me") || !strings.Contains(got, "and me") {
		t.Errorf("recent turns missing: %q", got)
	}

	// A turn is never split: a budget too small for the most recent
	// turn yields an empty window.
	if got := TruncateToRecent(turns, 5); got != "" {
		t.Errorf("expected empty window, got %q", got)
	}
}
