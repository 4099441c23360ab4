package store

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1.0}, nil
}

// semanticEmbedder hashes words into a fixed-dimensional vector so
// texts with overlapping vocabulary get high cosine similarity.
// Deterministic, no external service needed.
type semanticEmbedder struct {
	dimensions int
}

func (e *semanticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := strings.Fields(strings.ToLower(text))
	embedding := make([]float32, e.dimensions)
	if len(words) == 0 {
		return embedding, nil
	}

	for _, word := range words {
		h := fnv.New32a()
		if _, err := h.Write([]byte(word)); err != nil {
			return nil, err
		}
		hash := h.Sum32()
		for i := 0; i < 3; i++ {
			dim := int((hash + uint32(i)*2654435761) % uint32(e.dimensions)) //nolint:gosec // test code
			embedding[dim] += float32(math.Sin(float64(hash+uint32(i))*0.1) + 1.0)
		}
	}

	var magnitude float32
	for _, val := range embedding {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))
	if magnitude > 0 {
		for i := range embedding {
			embedding[i] /= magnitude
		}
	}
	return embedding, nil
}

func openTestIndex(t *testing.T, embedder Embedder) *SearchIndex {
	t.Helper()
	t.Setenv("DISTILL_HOME", t.TempDir())

	index, err := OpenSearchIndex(ScopeGlobal, "", embedder, testLogger())
	if err != nil {
		t.Fatalf("OpenSearchIndex: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestIndexAndFTSSearch(t *testing.T) {
	index := openTestIndex(t, stubEmbedder{})
	ctx := context.Background()

	if err := index.Index(ctx, "id1", "prefer table driven tests in Go", []string{"go", "testing"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := index.Index(ctx, "id2", "use zerolog for structured logging", []string{"logging"}); err != nil {
		t.Fatal(err)
	}

	results, err := index.FTSSearch(ctx, "logging", 5)
	if err != nil {
		t.Fatalf("FTSSearch: %v", err)
	}
	if len(results) != 1 || results[0].ID != "id2" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Content != "use zerolog for structured logging" {
		t.Errorf("unexpected content: %q", results[0].Content)
	}
	if len(results[0].Tags) != 1 || results[0].Tags[0] != "logging" {
		t.Errorf("unexpected tags: %v", results[0].Tags)
	}
}

func TestFTSSearchMatchesTags(t *testing.T) {
	index := openTestIndex(t, stubEmbedder{})
	ctx := context.Background()

	if err := index.Index(ctx, "id1", "always run the linter", []string{"golangci"}); err != nil {
		t.Fatal(err)
	}

	results, err := index.FTSSearch(ctx, "golangci", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected tag match, got %d results", len(results))
	}
}

func TestFTSSearchSanitizesPunctuation(t *testing.T) {
	index := openTestIndex(t, stubEmbedder{})
	ctx := context.Background()

	if err := index.Index(ctx, "id1", "wrap errors with fmt.Errorf", nil); err != nil {
		t.Fatal(err)
	}

	// Raw FTS5 would choke on the dot and quotes; sanitization must not.
	results, err := index.FTSSearch(ctx, `"fmt.Errorf" usage?`, 5)
	if err != nil {
		t.Fatalf("FTSSearch with punctuation: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score <= 0 {
		t.Errorf("expected positive higher-better score, got %f", results[0].Score)
	}
}

func TestSemanticSearchOrdering(t *testing.T) {
	index := openTestIndex(t, &semanticEmbedder{dimensions: 64})
	ctx := context.Background()

	entries := map[string]string{
		"db":   "use sqlite for embedded database storage",
		"http": "prefer chi router for http services",
		"fmt":  "run gofmt before committing code",
	}
	for id, content := range entries {
		if err := index.Index(ctx, id, content, nil); err != nil {
			t.Fatal(err)
		}
	}

	results, err := index.Search(ctx, "sqlite database storage", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "db" {
		t.Errorf("expected db entry first, got %s", results[0].ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not ordered by descending score: %f < %f", results[0].Score, results[1].Score)
	}
}

func TestSearchEmptyIndexReturnsNoError(t *testing.T) {
	// A failing embedder proves the empty index short-circuits before
	// the provider is touched.
	index := openTestIndex(t, failingEmbedder{})

	results, err := index.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, context.DeadlineExceeded
}

func TestRemoveIsIdempotent(t *testing.T) {
	index := openTestIndex(t, stubEmbedder{})
	ctx := context.Background()

	if err := index.Index(ctx, "id1", "something", nil); err != nil {
		t.Fatal(err)
	}
	if err := index.Remove(ctx, "id1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := index.Remove(ctx, "id1"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if err := index.Remove(ctx, "never-existed"); err != nil {
		t.Fatalf("Remove absent id: %v", err)
	}

	results, err := index.FTSSearch(ctx, "something", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("entry still present after remove: %+v", results)
	}
}

func TestReindexRebuildsFromMetadata(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())
	ctx := context.Background()

	meta, err := OpenMetadata(ScopeGlobal, "", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer meta.Close()

	index, err := OpenSearchIndex(ScopeGlobal, "", stubEmbedder{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	inserted, err := meta.Insert(ctx, Input{
		Content:    "rebuild target",
		Type:       TypePattern,
		Scope:      ScopeGlobal,
		Tags:       []string{"recovery"},
		Confidence: 0.8,
		Source:     Source{SessionID: "s", Timestamp: time.Now(), Trigger: TriggerManual},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The index never saw the insert; Reindex recovers it.
	if err := index.Reindex(ctx, meta); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	results, err := index.FTSSearch(ctx, "rebuild", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != inserted.ID {
		t.Fatalf("reindexed entry not found: %+v", results)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello world", `"hello" OR "world"`},
		{`don't panic!`, `"don" OR "t" OR "panic"`},
		{"données été", `"données" OR "été"`},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFTSQuery(tc.in); got != tc.want {
			t.Errorf("SanitizeFTSQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("identical vectors: got %f, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(float64(got)) > 1e-6 {
		t.Errorf("orthogonal vectors: got %f, want 0", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(float64(got)+1) > 1e-6 {
		t.Errorf("opposite vectors: got %f, want -1", got)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	original := []float32{0.5, -1.25, 3.75}
	decoded, err := DecodeEmbedding(EncodeEmbedding(original))
	if err != nil {
		t.Fatalf("DecodeEmbedding: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("index %d: %f != %f", i, decoded[i], original[i])
		}
	}
}
