package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/migrations"
)

// ErrNotFound is returned when a chunk id does not exist in the partition.
var ErrNotFound = errors.New("knowledge chunk not found")

// MetadataStore is the canonical record store for one scope partition.
// It exclusively owns chunk persistence; the SearchIndex holds only a
// derived copy and must be reconstructible from here.
type MetadataStore struct {
	db     *sql.DB
	scope  Scope
	logger zerolog.Logger
}

// OpenMetadata opens (creating on demand) the metadata store for a
// scope partition. The returned store must be closed by the caller on
// every exit path.
func OpenMetadata(scope Scope, projectRoot string, logger zerolog.Logger) (*MetadataStore, error) {
	dbPath, err := ResolveDBPath(scope, projectRoot)
	if err != nil {
		return nil, err
	}

	db, err := openPartitionDB(dbPath, logger)
	if err != nil {
		return nil, err
	}

	return &MetadataStore{
		db:     db,
		scope:  scope,
		logger: logger.With().Str("component", "metadata_store").Str("scope", string(scope)).Logger(),
	}, nil
}

// openPartitionDB opens a partition database in WAL mode and brings
// its schema up to date. Shared by MetadataStore and SearchIndex,
// which open independent handles on the same file.
func openPartitionDB(dbPath string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", dbPath, err)
	}
	if err := migrations.Run(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying database handle.
func (s *MetadataStore) Close() error {
	return s.db.Close()
}

func now() int64 { return time.Now().Unix() }

func knowledgeColumns() []string {
	return []string{
		"id", "content", "type", "scope", "project", "tags",
		"session_id", `"trigger"`, "source_timestamp",
		"confidence", "access_count", "created_at", "updated_at",
	}
}

// Insert persists a new chunk, assigning id and timestamps and a zero
// access count. The caller's input is never mutated.
func (s *MetadataStore) Insert(ctx context.Context, input Input) (Chunk, error) {
	if strings.TrimSpace(input.Content) == "" {
		return Chunk{}, errors.New("content is empty")
	}
	if !ValidType(input.Type) {
		return Chunk{}, fmt.Errorf("invalid type: %q", input.Type)
	}
	if !ValidScope(input.Scope) {
		return Chunk{}, fmt.Errorf("%w: %q", ErrInvalidScope, input.Scope)
	}
	if !ValidTrigger(input.Source.Trigger) {
		return Chunk{}, fmt.Errorf("invalid trigger: %q", input.Source.Trigger)
	}
	if input.Confidence < 0 || input.Confidence > 1 {
		return Chunk{}, fmt.Errorf("confidence out of range: %v", input.Confidence)
	}
	if (input.Project != nil) != (input.Scope == ScopeProject) {
		return Chunk{}, errors.New("project must be set exactly when scope is project")
	}

	tagsJSON, err := json.Marshal(tagsOrEmpty(input.Tags))
	if err != nil {
		return Chunk{}, fmt.Errorf("marshal tags: %w", err)
	}

	id := uuid.NewString()
	nowUnix := now()

	var projectVal interface{}
	if input.Project != nil {
		projectVal = *input.Project
	}

	query := StatementBuilder().
		Insert("knowledge").
		Columns(knowledgeColumns()...).
		Values(id, input.Content, string(input.Type), string(input.Scope), projectVal,
			string(tagsJSON), input.Source.SessionID, string(input.Source.Trigger),
			input.Source.Timestamp.Unix(), input.Confidence, 0, nowUnix, nowUnix)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Chunk{}, fmt.Errorf("build insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		s.logger.Error().Err(err).Msg("failed to insert knowledge chunk")
		return Chunk{}, fmt.Errorf("insert knowledge chunk: %w", err)
	}

	s.logger.Info().
		Str("id", id).
		Str("type", string(input.Type)).
		Str("content", truncateString(input.Content, 60)).
		Msg("knowledge chunk inserted")

	chunk := Chunk{
		ID:          id,
		Content:     input.Content,
		Type:        input.Type,
		Scope:       input.Scope,
		Project:     copyStringPtr(input.Project),
		Tags:        append([]string(nil), input.Tags...),
		Source:      input.Source,
		Confidence:  input.Confidence,
		AccessCount: 0,
		CreatedAt:   time.Unix(nowUnix, 0),
		UpdatedAt:   time.Unix(nowUnix, 0),
	}
	return chunk, nil
}

// GetByID fetches one chunk, or ErrNotFound.
func (s *MetadataStore) GetByID(ctx context.Context, id string) (Chunk, error) {
	query := StatementBuilder().
		Select(knowledgeColumns()...).
		From("knowledge").
		Where(sq.Eq{"id": id})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Chunk{}, fmt.Errorf("build select query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return Chunk{}, fmt.Errorf("select knowledge chunk: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, ErrNotFound
	}
	return scanChunk(rows)
}

// Search returns chunks matching the conjunctive filters, ordered by
// updated_at descending. The default limit is 20.
func (s *MetadataStore) Search(ctx context.Context, filters Filters) ([]Chunk, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}

	conditions := []sq.Sqlizer{}
	if filters.Scope != "" {
		conditions = append(conditions, sq.Eq{"scope": string(filters.Scope)})
	}
	if filters.Type != "" {
		conditions = append(conditions, sq.Eq{"type": string(filters.Type)})
	}
	if filters.Project != "" {
		conditions = append(conditions, sq.Eq{"project": filters.Project})
	}

	query := StatementBuilder().
		Select(knowledgeColumns()...).
		From("knowledge").
		OrderBy("updated_at DESC").
		Limit(uint64(limit))
	if len(conditions) > 0 {
		query = query.Where(sq.And(conditions))
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	return scanChunks(rows)
}

// Touch increments a chunk's access count and refreshes updated_at.
// A missing id is a no-op; recall paths touch optimistically after a
// search hit and must not fail.
func (s *MetadataStore) Touch(ctx context.Context, id string) error {
	queryStr, args, err := StatementBuilder().
		Update("knowledge").
		Set("access_count", sq.Expr("access_count + 1")).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("touch knowledge chunk: %w", err)
	}
	return nil
}

// UpdateScope mutates a chunk's scope in place. The tool-level
// promote/demote flow instead does delete+reinsert across partitions,
// because scope determines the physical store; this primitive stays
// for callers operating within one partition.
func (s *MetadataStore) UpdateScope(ctx context.Context, id string, newScope Scope) error {
	if !ValidScope(newScope) {
		return fmt.Errorf("%w: %q", ErrInvalidScope, newScope)
	}
	queryStr, args, err := StatementBuilder().
		Update("knowledge").
		Set("scope", string(newScope)).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update scope query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("update scope: %w", err)
	}
	return nil
}

// Delete removes a chunk. Returns true iff a row was removed.
func (s *MetadataStore) Delete(ctx context.Context, id string) (bool, error) {
	queryStr, args, err := StatementBuilder().
		Delete("knowledge").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return false, fmt.Errorf("delete knowledge chunk: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Stats scans the partition and returns aggregate counts.
func (s *MetadataStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByType: map[string]int{}, ByScope: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&stats.Total); err != nil {
		return Stats{}, fmt.Errorf("count knowledge: %w", err)
	}

	for _, group := range []struct {
		column string
		dest   map[string]int
	}{
		{"type", stats.ByType},
		{"scope", stats.ByScope},
	} {
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf("SELECT %s, COUNT(*) FROM knowledge GROUP BY %s", group.column, group.column))
		if err != nil {
			return Stats{}, fmt.Errorf("group by %s: %w", group.column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				_ = rows.Close()
				return Stats{}, err
			}
			group.dest[key] = count
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return Stats{}, err
		}
		_ = rows.Close()
	}

	return stats, nil
}

// GetAll returns every chunk in the partition. Used by crystallize and
// digest; no ordering is guaranteed.
func (s *MetadataStore) GetAll(ctx context.Context) ([]Chunk, error) {
	queryStr, args, err := StatementBuilder().
		Select(knowledgeColumns()...).
		From("knowledge").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get-all query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("load all knowledge: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	return scanChunks(rows)
}

// CountSince counts chunks created at or after t. Drives the
// auto-crystallize threshold.
func (s *MetadataStore) CountSince(ctx context.Context, t time.Time) (int, error) {
	queryStr, args, err := StatementBuilder().
		Select("COUNT(*)").
		From("knowledge").
		Where(sq.GtOrEq{"created_at": t.Unix()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count-since query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count since: %w", err)
	}
	return count, nil
}

// GetMeta reads a value from the pipeline-bookkeeping sidecar.
// Returns "" when the key is absent.
func (s *MetadataStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a sidecar value.
func (s *MetadataStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var (
		id, content, typStr, scopeStr string
		project                       sql.NullString
		tagsJSON, sessionID, trigger  string
		sourceTS                      int64
		confidence                    float64
		accessCount                   int
		createdAt, updatedAt          int64
	)
	if err := rows.Scan(&id, &content, &typStr, &scopeStr, &project, &tagsJSON,
		&sessionID, &trigger, &sourceTS, &confidence, &accessCount, &createdAt, &updatedAt); err != nil {
		return Chunk{}, err
	}

	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		tags = nil
	}

	var projectPtr *string
	if project.Valid {
		v := project.String
		projectPtr = &v
	}

	return Chunk{
		ID:      id,
		Content: content,
		Type:    Type(typStr),
		Scope:   Scope(scopeStr),
		Project: projectPtr,
		Tags:    tags,
		Source: Source{
			SessionID: sessionID,
			Timestamp: time.Unix(sourceTS, 0),
			Trigger:   Trigger(trigger),
		},
		Confidence:  confidence,
		AccessCount: accessCount,
		CreatedAt:   time.Unix(createdAt, 0),
		UpdatedAt:   time.Unix(updatedAt, 0),
	}, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// truncateString shortens s for log safety.
func truncateString(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
