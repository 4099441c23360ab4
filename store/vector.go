package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// SearchIndex is the dual-mode retrieval index for one scope partition:
// FTS5 for keyword search plus an embedding table for semantic search.
// It holds a derived copy of chunk content and tags, never the
// canonical record; callers keep it in sync with the MetadataStore
// (index after insert, remove on delete) and can rebuild it with
// Reindex when the two drift.
type SearchIndex struct {
	db       *sql.DB
	embedder Embedder
	logger   zerolog.Logger
}

// SearchResult is one retrieval hit. Score is always higher-better:
// cosine similarity in [-1,1] for semantic search, negated FTS5 rank
// for keyword search.
type SearchResult struct {
	ID      string
	Content string
	Tags    []string
	Score   float64
}

// OpenSearchIndex opens the search index for a scope partition. A nil
// embedder selects the process-wide shared provider, constructed
// lazily on first semantic operation.
func OpenSearchIndex(scope Scope, projectRoot string, embedder Embedder, logger zerolog.Logger) (*SearchIndex, error) {
	dbPath, err := ResolveDBPath(scope, projectRoot)
	if err != nil {
		return nil, err
	}

	db, err := openPartitionDB(dbPath, logger)
	if err != nil {
		return nil, err
	}

	return &SearchIndex{
		db:       db,
		embedder: embedder,
		logger:   logger.With().Str("component", "search_index").Str("scope", string(scope)).Logger(),
	}, nil
}

// Close releases the underlying database handle.
func (s *SearchIndex) Close() error {
	return s.db.Close()
}

func (s *SearchIndex) embed(ctx context.Context, text string) ([]float32, error) {
	embedder := s.embedder
	if embedder == nil {
		var err error
		embedder, err = SharedEmbedder()
		if err != nil {
			return nil, err
		}
	}
	return embedder.Embed(ctx, text)
}

// Index writes an entry to both retrieval modes. The keyword write is
// synchronous; the semantic write waits on the embedding computation.
// When Index returns, both modes reflect the entry.
func (s *SearchIndex) Index(ctx context.Context, id, content string, tags []string) error {
	if _, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO knowledge_fts (id, content, tags) VALUES (?, ?, ?)
`, id, content, strings.Join(tags, " ")); err != nil {
		return fmt.Errorf("index fts entry: %w", err)
	}

	embedding, err := s.embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO knowledge_vec (id, embedding) VALUES (?, ?)
`, id, EncodeEmbedding(embedding)); err != nil {
		return fmt.Errorf("index vector entry: %w", err)
	}

	s.logger.Debug().Str("id", id).Int("dims", len(embedding)).Msg("indexed entry")
	return nil
}

// Search runs semantic retrieval: embeds the query and ranks indexed
// entries by cosine similarity, descending. An empty index yields an
// empty result, not an error.
func (s *SearchIndex) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_vec").Scan(&total); err != nil {
		return nil, fmt.Errorf("count vector entries: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	queryEmbedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, embedding FROM knowledge_vec")
	if err != nil {
		return nil, fmt.Errorf("scan vector entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	type scored struct {
		id    string
		score float64
	}
	var hits []scored
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			s.logger.Warn().Str("id", id).Err(err).Msg("skipping undecodable embedding")
			continue
		}
		hits = append(hits, scored{id: id, score: CosineSimilarity(queryEmbedding, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if len(hits) == 0 {
		return nil, nil
	}

	entries, err := s.loadFTSEntries(ctx, lo.Map(hits, func(h scored, _ int) string { return h.id }))
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		entry, ok := entries[h.id]
		if !ok {
			// Vector row without a matching FTS row means the two
			// modes drifted; surface nothing rather than a hollow hit.
			s.logger.Warn().Str("id", h.id).Msg("vector entry missing from fts index")
			continue
		}
		entry.Score = h.score
		results = append(results, entry)
	}
	return results, nil
}

// FTSSearch runs keyword-only retrieval. It never touches the
// embedding provider, so it stays a fully synchronous fast path.
func (s *SearchIndex) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	sanitized := SanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, tags, rank
FROM knowledge_fts
WHERE knowledge_fts MATCH ?
ORDER BY rank
LIMIT ?
`, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var results []SearchResult
	for rows.Next() {
		var id, content, tags string
		var rank float64
		if err := rows.Scan(&id, &content, &tags, &rank); err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			ID:      id,
			Content: content,
			Tags:    splitTags(tags),
			// FTS5 rank sorts best-first ascending; negate so higher
			// is better like every other score in the system.
			Score: -rank,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Remove deletes an entry from both modes. Removing an absent id is
// not an error.
func (s *SearchIndex) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_fts WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove fts entry: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_vec WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove vector entry: %w", err)
	}
	return nil
}

// Reindex rebuilds both retrieval modes from the metadata store, the
// recovery path for caller-driven dual-store drift.
func (s *SearchIndex) Reindex(ctx context.Context, meta *MetadataStore) error {
	chunks, err := meta.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load chunks for reindex: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_fts"); err != nil {
		return fmt.Errorf("clear fts index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_vec"); err != nil {
		return fmt.Errorf("clear vector index: %w", err)
	}

	for _, chunk := range chunks {
		if err := s.Index(ctx, chunk.ID, chunk.Content, chunk.Tags); err != nil {
			return fmt.Errorf("reindex chunk %s: %w", chunk.ID, err)
		}
	}
	s.logger.Info().Int("chunks", len(chunks)).Msg("search index rebuilt from metadata")
	return nil
}

func (s *SearchIndex) loadFTSEntries(ctx context.Context, ids []string) (map[string]SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := lo.Map(ids, func(id string, _ int) interface{} { return id })

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, content, tags FROM knowledge_fts WHERE id IN (%s)", placeholders),
		args...)
	if err != nil {
		return nil, fmt.Errorf("load fts entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	entries := make(map[string]SearchResult, len(ids))
	for rows.Next() {
		var id, content, tags string
		if err := rows.Scan(&id, &content, &tags); err != nil {
			return nil, err
		}
		entries[id] = SearchResult{ID: id, Content: content, Tags: splitTags(tags)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var ftsStripPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// SanitizeFTSQuery prepares free text for FTS5 MATCH syntax: strips
// everything but Unicode letters, digits and whitespace, then
// OR-joins the quoted tokens so a multi-word query matches the union
// of per-token hits.
func SanitizeFTSQuery(query string) string {
	cleaned := ftsStripPattern.ReplaceAllString(query, " ")
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}
	quoted := lo.Map(tokens, func(t string, _ int) string { return `"` + t + `"` })
	return strings.Join(quoted, " OR ")
}

func splitTags(tags string) []string {
	return lo.Filter(strings.Split(tags, " "), func(t string, _ int) bool { return t != "" })
}
