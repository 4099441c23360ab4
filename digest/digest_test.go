package digest

import (
	"math"
	"strings"
	"testing"

	"github.com/distillmcp/distill/store"
)

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "use strict mode", "use strict mode", 1},
		{"case and order insensitive", "Strict Use mode", "use strict MODE", 1},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"half overlap", "a b c d", "c d e f", 1.0 / 3.0},
		{"both empty", "", "", 0},
		{"one empty", "words here", "", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Jaccard(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Jaccard(%q, %q) = %f, want %f", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func chunk(id, content string, confidence float64, accessCount int) store.Chunk {
	return store.Chunk{
		ID:          id,
		Content:     content,
		Type:        store.TypePattern,
		Scope:       store.ScopeGlobal,
		Confidence:  confidence,
		AccessCount: accessCount,
	}
}

func TestFindDuplicatesThresholdIsStrict(t *testing.T) {
	// 7 of 10 distinct words shared: Jaccard = 7/13 < 0.7, not reported.
	below := []store.Chunk{
		chunk("a", "one two three four five six seven eight nine ten", 0.9, 0),
		chunk("b", "one two three four five six seven x y z", 0.9, 0),
	}
	if got := FindDuplicates(below); len(got) != 0 {
		t.Errorf("pair below threshold reported: %+v", got)
	}

	near := []store.Chunk{
		chunk("a", "always use write ahead logging for sqlite", 0.9, 0),
		chunk("b", "always use write ahead logging for sqlite databases", 0.9, 0),
	}
	got := FindDuplicates(near)
	if len(got) != 1 {
		t.Fatalf("expected 1 duplicate pair, got %d", len(got))
	}
	if got[0].A.ID != "a" || got[0].B.ID != "b" {
		t.Errorf("unexpected pair: %+v", got[0])
	}
	if got[0].Similarity <= 0.7 {
		t.Errorf("reported pair must exceed 0.7, got %f", got[0].Similarity)
	}
}

func TestFindDuplicatesComparesAllPairs(t *testing.T) {
	same := "exactly the same content"
	chunks := []store.Chunk{
		chunk("a", same, 0.9, 0),
		chunk("b", same, 0.9, 0),
		chunk("c", same, 0.9, 0),
	}
	if got := FindDuplicates(chunks); len(got) != 3 {
		t.Errorf("expected 3 unordered pairs, got %d", len(got))
	}
}

func TestFindStale(t *testing.T) {
	chunks := []store.Chunk{
		chunk("low-unaccessed", "a", 0.3, 0),
		chunk("low-accessed", "b", 0.3, 2),
		chunk("boundary", "c", 0.5, 0),
		chunk("high-unaccessed", "d", 0.9, 0),
	}

	stale := FindStale(chunks)
	if len(stale) != 1 || stale[0].ID != "low-unaccessed" {
		t.Fatalf("unexpected stale set: %+v", stale)
	}
}

func TestAnalyzeAndRender(t *testing.T) {
	report := Analyze(store.ScopeGlobal, []store.Chunk{
		chunk("a", "the same fact stated here", 0.9, 1),
		chunk("b", "the same fact stated here", 0.9, 0),
		chunk("stale", "never trusted never read", 0.2, 0),
	})

	if report.Total != 3 {
		t.Errorf("expected total 3, got %d", report.Total)
	}
	if len(report.Duplicates) != 1 {
		t.Errorf("expected 1 duplicate pair, got %d", len(report.Duplicates))
	}
	if len(report.Stale) != 1 {
		t.Errorf("expected 1 stale entry, got %d", len(report.Stale))
	}

	rendered := report.Render()
	for _, want := range []string{"Scope: global", "Probable duplicates (1)", "Stale entries (1", "never trusted never read"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered report missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderEmptyScope(t *testing.T) {
	rendered := Analyze(store.ScopeProject, nil).Render()
	if !strings.Contains(rendered, "No probable duplicates.") || !strings.Contains(rendered, "No stale entries.") {
		t.Errorf("unexpected empty render:\n%s", rendered)
	}
}
