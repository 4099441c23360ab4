package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/config"
	"github.com/distillmcp/distill/extractor"
	"github.com/distillmcp/distill/llm"
	"github.com/distillmcp/distill/store"
)

// MemoryTool manages the knowledge lifecycle: promote/demote between
// scopes, delete entries, and crystallize accumulated knowledge into
// rule documents.
type MemoryTool struct {
	logger zerolog.Logger
	newLLM func() (llm.Client, error)
}

func NewMemoryTool(logger zerolog.Logger, newLLM func() (llm.Client, error)) *MemoryTool {
	return &MemoryTool{
		logger: logger.With().Str("tool", "memory").Logger(),
		newLLM: newLLM,
	}
}

func (t *MemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("memory",
		mcp.WithDescription("Manage knowledge: promote/demote scope, delete entries, or crystallize rules"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("promote: project to global, demote: global to project, delete: remove, crystallize: generate rules from accumulated knowledge"),
			mcp.Enum("promote", "demote", "delete", "crystallize"),
		),
		mcp.WithString("id",
			mcp.Description("Knowledge entry ID (required for promote/demote/delete, ignored for crystallize)"),
		),
	)
}

func (t *MemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id := req.GetString("id", "")
	projectRoot := store.DetectProjectRoot("")

	if action == "crystallize" {
		return t.handleCrystallize(ctx, projectRoot)
	}
	if id == "" {
		return mcp.NewToolResultText(fmt.Sprintf("Action %q requires an id parameter.", action)), nil
	}
	if action == "delete" {
		return t.handleDelete(ctx, id, projectRoot)
	}
	return t.handlePromoteDemote(ctx, action, id, projectRoot)
}

func (t *MemoryTool) handleCrystallize(ctx context.Context, projectRoot string) (*mcp.CallToolResult, error) {
	allChunks := collectAllChunks(ctx, projectRoot, t.logger)
	if len(allChunks) == 0 {
		return mcp.NewToolResultText("No knowledge chunks to crystallize."), nil
	}

	client, err := t.newLLM()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reasoning service unavailable: %v", err)), nil
	}

	cfg := config.Load(projectRoot)
	report, err := extractor.Crystallize(ctx, client, allChunks, cfg.CrystallizeModel, projectRoot, t.logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("crystallize failed: %v", err)), nil
	}
	markCrystallized(ctx, t.logger)

	lines := []string{fmt.Sprintf("Crystallized %d knowledge chunks.", len(allChunks))}
	if len(report.Created) > 0 {
		lines = append(lines, "Created: "+strings.Join(report.Created, ", "))
	}
	if len(report.Updated) > 0 {
		lines = append(lines, "Updated: "+strings.Join(report.Updated, ", "))
	}
	if len(report.Removed) > 0 {
		lines = append(lines, "Removed: "+strings.Join(report.Removed, ", "))
	}
	lines = append(lines, fmt.Sprintf("Total rules: %d", report.TotalRules))
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// handleDelete tries both scope partitions; the first one holding the
// id wins.
func (t *MemoryTool) handleDelete(ctx context.Context, id, projectRoot string) (*mcp.CallToolResult, error) {
	deletedScope := store.Scope("")
	forEachScope(ctx, "", projectRoot, true, t.logger, func(s ScopeStores) error {
		if deletedScope != "" {
			return nil
		}
		deleted, err := s.Meta.Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted {
			deletedScope = s.Scope
			return s.Index.Remove(ctx, id)
		}
		return nil
	})

	if deletedScope == "" {
		return mcp.NewToolResultText(fmt.Sprintf("Knowledge entry %s not found.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted knowledge entry %s from %s scope.", id, deletedScope)), nil
}

// handlePromoteDemote moves a chunk between partitions. Because scope
// determines the physical store, the move is insert-into-destination
// then delete-from-source, and the chunk gets a new id.
func (t *MemoryTool) handlePromoteDemote(ctx context.Context, action, id, projectRoot string) (*mcp.CallToolResult, error) {
	fromScope, toScope := store.ScopeProject, store.ScopeGlobal
	if action == "demote" {
		fromScope, toScope = store.ScopeGlobal, store.ScopeProject
	}
	if toScope == store.ScopeProject && projectRoot == "" {
		return mcp.NewToolResultText("Cannot demote to project scope: no project root detected."), nil
	}
	if fromScope == store.ScopeProject && projectRoot == "" {
		return mcp.NewToolResultText("Cannot promote from project scope: no project root detected."), nil
	}

	chunk, err := t.moveChunk(ctx, id, fromScope, toScope, projectRoot)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf("Knowledge entry %s not found in %s scope.", id, fromScope)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err)), nil
	}

	verb := "Promoted"
	if action == "demote" {
		verb = "Demoted"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s knowledge entry.\n%s -> %s\nNew ID: %s\nContent: %s",
		verb, fromScope, toScope, chunk.ID, truncate(chunk.Content, 100))), nil
}

func (t *MemoryTool) moveChunk(ctx context.Context, id string, fromScope, toScope store.Scope, projectRoot string) (store.Chunk, error) {
	fromMeta, err := store.OpenMetadata(fromScope, projectRoot, t.logger)
	if err != nil {
		return store.Chunk{}, err
	}
	defer fromMeta.Close() //nolint:errcheck // handle is per-operation

	chunk, err := fromMeta.GetByID(ctx, id)
	if err != nil {
		return store.Chunk{}, err
	}

	toMeta, err := store.OpenMetadata(toScope, projectRoot, t.logger)
	if err != nil {
		return store.Chunk{}, err
	}
	defer toMeta.Close() //nolint:errcheck // handle is per-operation

	toIndex, err := store.OpenSearchIndex(toScope, projectRoot, nil, t.logger)
	if err != nil {
		return store.Chunk{}, err
	}
	defer toIndex.Close() //nolint:errcheck // handle is per-operation

	var project *string
	if toScope == store.ScopeProject {
		project = chunk.Project
		if project == nil {
			name := projectName(projectRoot)
			project = &name
		}
	}
	input := store.Input{
		Content:    chunk.Content,
		Type:       chunk.Type,
		Scope:      toScope,
		Project:    project,
		Tags:       chunk.Tags,
		Source:     chunk.Source,
		Confidence: chunk.Confidence,
	}
	inserted, err := toMeta.Insert(ctx, input)
	if err != nil {
		return store.Chunk{}, err
	}
	if err := toIndex.Index(ctx, inserted.ID, inserted.Content, inserted.Tags); err != nil {
		return store.Chunk{}, err
	}

	// Destination write succeeded; remove the source copy.
	fromIndex, err := store.OpenSearchIndex(fromScope, projectRoot, nil, t.logger)
	if err != nil {
		return store.Chunk{}, err
	}
	defer fromIndex.Close() //nolint:errcheck // handle is per-operation

	if _, err := fromMeta.Delete(ctx, id); err != nil {
		return store.Chunk{}, err
	}
	if err := fromIndex.Remove(ctx, id); err != nil {
		return store.Chunk{}, err
	}
	return inserted, nil
}

func projectName(projectRoot string) string {
	return filepath.Base(projectRoot)
}
