package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/store"
)

// RecallTool searches accumulated knowledge by semantic similarity
// across the applicable scopes.
type RecallTool struct {
	logger zerolog.Logger
}

func NewRecallTool(logger zerolog.Logger) *RecallTool {
	return &RecallTool{logger: logger.With().Str("tool", "recall").Logger()}
}

func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("recall",
		mcp.WithDescription("Search accumulated knowledge by semantic similarity"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query for knowledge retrieval"),
		),
		mcp.WithString("scope",
			mcp.Description("Filter by scope (default: both)"),
			mcp.Enum("global", "project"),
		),
		mcp.WithString("type",
			mcp.Description("Filter by knowledge type"),
			mcp.Enum("pattern", "preference", "decision", "mistake", "workaround", "conflict"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5)"),
		),
	)
}

func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scopeParam := store.Scope(req.GetString("scope", ""))
	typeParam := store.Type(req.GetString("type", ""))
	limit := req.GetInt("limit", 5)
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	projectRoot := store.DetectProjectRoot("")
	var results []store.Chunk

	forEachScope(ctx, scopeParam, projectRoot, true, t.logger, func(s ScopeStores) error {
		hits, err := s.Index.Search(ctx, query, limit)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			chunk, err := s.Meta.GetByID(ctx, hit.ID)
			if err != nil {
				continue
			}
			if typeParam != "" && chunk.Type != typeParam {
				continue
			}
			// Recall counts as access; a touch failure must not lose
			// the hit.
			_ = s.Meta.Touch(ctx, hit.ID)
			results = append(results, chunk)
		}
		return nil
	})

	sort.SliceStable(results, func(i, j int) bool { return results[i].Confidence > results[j].Confidence })
	if len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No matching knowledge found."), nil
	}

	lines := make([]string, len(results))
	for i, k := range results {
		lines[i] = fmt.Sprintf("%d. [%s] (%s, confidence: %.2f)\n   %s\n   tags: %s",
			i+1, k.Type, k.Scope, k.Confidence, k.Content, strings.Join(k.Tags, ", "))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n\n")), nil
}
