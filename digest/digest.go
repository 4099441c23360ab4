// Package digest is the read-only analysis pass over a scope's
// knowledge: probable duplicates by word-set similarity and stale
// entries that were never recalled. It never mutates the store.
package digest

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/distillmcp/distill/store"
)

// duplicateThreshold is strict: a pair at exactly 0.7 is not reported.
const duplicateThreshold = 0.7

// DuplicatePair is two chunks whose contents look like the same fact.
type DuplicatePair struct {
	A          store.Chunk
	B          store.Chunk
	Similarity float64
}

// Report holds one scope's analysis results.
type Report struct {
	Scope      store.Scope
	Total      int
	Duplicates []DuplicatePair
	Stale      []store.Chunk
}

// Jaccard computes bag-of-words Jaccard similarity between two texts.
// Tokenization is whitespace splitting, case-insensitive. Two empty
// texts are not similar.
func Jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = struct{}{}
	}
	return set
}

// FindDuplicates compares every unordered pair. O(n^2) over the scope,
// which is fine for an offline analysis path.
func FindDuplicates(chunks []store.Chunk) []DuplicatePair {
	var pairs []DuplicatePair
	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			sim := Jaccard(chunks[i].Content, chunks[j].Content)
			if sim > duplicateThreshold {
				pairs = append(pairs, DuplicatePair{A: chunks[i], B: chunks[j], Similarity: sim})
			}
		}
	}
	return pairs
}

// FindStale returns chunks that never earned trust: low confidence and
// never accessed since insertion.
func FindStale(chunks []store.Chunk) []store.Chunk {
	return lo.Filter(chunks, func(c store.Chunk, _ int) bool {
		return c.Confidence < 0.5 && c.AccessCount == 0
	})
}

// Analyze produces the full report for one scope's chunks.
func Analyze(scope store.Scope, chunks []store.Chunk) Report {
	return Report{
		Scope:      scope,
		Total:      len(chunks),
		Duplicates: FindDuplicates(chunks),
		Stale:      FindStale(chunks),
	}
}

// Render formats a report for human reading.
func (r Report) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Scope: %s (%d chunks)\n\n", r.Scope, r.Total)

	if len(r.Duplicates) == 0 {
		sb.WriteString("No probable duplicates.\n")
	} else {
		fmt.Fprintf(&sb, "Probable duplicates (%d):\n", len(r.Duplicates))
		for _, pair := range r.Duplicates {
			fmt.Fprintf(&sb, "- %.0f%% similar:\n  - [%s] %s\n  - [%s] %s\n",
				pair.Similarity*100, pair.A.ID, pair.A.Content, pair.B.ID, pair.B.Content)
		}
	}

	sb.WriteString("\n")
	if len(r.Stale) == 0 {
		sb.WriteString("No stale entries.\n")
	} else {
		fmt.Fprintf(&sb, "Stale entries (%d, low confidence and never recalled):\n", len(r.Stale))
		for _, c := range r.Stale {
			fmt.Fprintf(&sb, "- [%s] (confidence %.2f) %s\n", c.ID, c.Confidence, c.Content)
		}
	}

	return sb.String()
}
