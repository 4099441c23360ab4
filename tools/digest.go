package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/digest"
	"github.com/distillmcp/distill/store"
)

// DigestTool runs the read-only duplicate and staleness analysis over
// each applicable scope.
type DigestTool struct {
	logger zerolog.Logger
}

func NewDigestTool(logger zerolog.Logger) *DigestTool {
	return &DigestTool{logger: logger.With().Str("tool", "digest").Logger()}
}

func (t *DigestTool) Definition() mcp.Tool {
	return mcp.NewTool("digest",
		mcp.WithDescription("Analyze patterns across accumulated knowledge: find duplicates and stale entries"),
	)
}

func (t *DigestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectRoot := store.DetectProjectRoot("")

	var sections []string
	forEachScope(ctx, "", projectRoot, false, t.logger, func(s ScopeStores) error {
		chunks, err := s.Meta.Search(ctx, store.Filters{Scope: s.Scope, Limit: 1000})
		if err != nil {
			return err
		}
		sections = append(sections, digest.Analyze(s.Scope, chunks).Render())
		return nil
	})

	if len(sections) == 0 {
		return mcp.NewToolResultText("No knowledge to analyze."), nil
	}
	return mcp.NewToolResultText(strings.Join(sections, "\n")), nil
}
