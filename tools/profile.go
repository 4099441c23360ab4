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

// ProfileTool reports aggregate statistics over accumulated knowledge.
type ProfileTool struct {
	logger zerolog.Logger
}

func NewProfileTool(logger zerolog.Logger) *ProfileTool {
	return &ProfileTool{logger: logger.With().Str("tool", "profile").Logger()}
}

func (t *ProfileTool) Definition() mcp.Tool {
	return mcp.NewTool("profile",
		mcp.WithDescription("View accumulated user knowledge profile and statistics"),
		mcp.WithString("scope",
			mcp.Description("Filter by scope (default: both)"),
			mcp.Enum("global", "project"),
		),
	)
}

func (t *ProfileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scopeParam := store.Scope(req.GetString("scope", ""))
	projectRoot := store.DetectProjectRoot("")

	var sections []string
	visited := map[store.Scope]bool{}

	forEachScope(ctx, scopeParam, projectRoot, false, t.logger, func(s ScopeStores) error {
		visited[s.Scope] = true

		stats, err := s.Meta.Stats(ctx)
		if err != nil {
			return err
		}

		var typeLines []string
		for _, typ := range sortedKeys(stats.ByType) {
			typeLines = append(typeLines, fmt.Sprintf("  %s: %d", typ, stats.ByType[typ]))
		}
		typeBreakdown := strings.Join(typeLines, "\n")
		if typeBreakdown == "" {
			typeBreakdown = "  (empty)"
		}
		sections = append(sections, fmt.Sprintf("## %s scope\nTotal: %d\n\nBy type:\n%s",
			strings.ToUpper(string(s.Scope)), stats.Total, typeBreakdown))

		recent, err := s.Meta.Search(ctx, store.Filters{Scope: s.Scope, Limit: 5})
		if err != nil || len(recent) == 0 {
			return err
		}
		sort.SliceStable(recent, func(i, j int) bool { return recent[i].AccessCount > recent[j].AccessCount })
		if len(recent) > 3 {
			recent = recent[:3]
		}
		var top []string
		for _, k := range recent {
			top = append(top, fmt.Sprintf("  - [%s] (accessed %dx) %s", k.Type, k.AccessCount, truncate(k.Content, 60)))
		}
		sections = append(sections, "Most accessed:\n"+strings.Join(top, "\n"))
		return nil
	})

	// Scopes without a partition still get a placeholder section.
	for _, scope := range resolveScopes(scopeParam, projectRoot) {
		if !visited[scope] {
			sections = append(sections, fmt.Sprintf("## %s scope\n(no data yet)", strings.ToUpper(string(scope))))
		}
	}

	if len(sections) == 0 {
		return mcp.NewToolResultText("No knowledge accumulated yet."), nil
	}
	return mcp.NewToolResultText(strings.Join(sections, "\n\n")), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
