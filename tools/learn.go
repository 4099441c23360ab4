package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/config"
	"github.com/distillmcp/distill/extractor"
	"github.com/distillmcp/distill/llm"
	"github.com/distillmcp/distill/store"
)

const lastCrystallizeKey = "last_crystallize"

// LearnTool extracts knowledge from a transcript and saves it to the
// appropriate scope partitions.
type LearnTool struct {
	logger zerolog.Logger
	newLLM func() (llm.Client, error)
}

func NewLearnTool(logger zerolog.Logger, newLLM func() (llm.Client, error)) *LearnTool {
	return &LearnTool{
		logger: logger.With().Str("tool", "learn").Logger(),
		newLLM: newLLM,
	}
}

func (t *LearnTool) Definition() mcp.Tool {
	return mcp.NewTool("learn",
		mcp.WithDescription("Extract and save knowledge from a conversation transcript"),
		mcp.WithString("transcript_path",
			mcp.Required(),
			mcp.Description("Path to the .jsonl transcript file"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID for tracking source"),
		),
		mcp.WithString("scope",
			mcp.Description("Force scope (default: auto-detect per chunk)"),
			mcp.Enum("global", "project"),
		),
	)
}

func (t *LearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transcriptPath, err := req.RequireString("transcript_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scopeOverride := store.Scope(req.GetString("scope", ""))

	projectRoot := store.DetectProjectRoot("")
	projectName := ""
	if projectRoot != "" {
		projectName = filepath.Base(projectRoot)
	}
	cfg := config.Load(projectRoot)

	client, err := t.newLLM()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reasoning service unavailable: %v", err)), nil
	}

	inputs, err := extractor.Extract(ctx, client, extractor.Options{
		TranscriptPath:     transcriptPath,
		SessionID:          sessionID,
		Trigger:            store.TriggerManual,
		ProjectName:        projectName,
		ProjectRoot:        projectRoot,
		ScopeOverride:      scopeOverride,
		Model:              cfg.ExtractionModel,
		MaxTranscriptChars: cfg.MaxTranscriptChars,
	}, t.logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}
	if len(inputs) == 0 {
		return mcp.NewToolResultText("No extractable knowledge found in this transcript."), nil
	}

	saved, conflictWarnings := t.saveChunks(ctx, inputs, projectRoot)

	lines := []string{fmt.Sprintf("Extracted %d knowledge chunks, saved %d.", len(inputs), saved)}
	if len(conflictWarnings) > 0 {
		lines = append(lines, "", "Rule conflicts detected:")
		lines = append(lines, conflictWarnings...)
	}
	lines = append(lines, "")
	for _, in := range inputs {
		lines = append(lines, fmt.Sprintf("- [%s] %s", in.Type, truncate(in.Content, 80)))
	}

	if autoMsg := t.maybeAutoCrystallize(ctx, client, cfg, projectRoot); autoMsg != "" {
		lines = append(lines, "", autoMsg)
	}

	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// saveChunks inserts and indexes each chunk in isolation: one failure
// is logged and the rest still save.
func (t *LearnTool) saveChunks(ctx context.Context, inputs []store.Input, projectRoot string) (int, []string) {
	saved := 0
	var conflictWarnings []string

	for _, input := range inputs {
		if err := t.saveChunk(ctx, input, projectRoot); err != nil {
			t.logger.Error().Err(err).Str("content", truncate(input.Content, 60)).Msg("failed to save chunk")
			continue
		}
		if input.Type == store.TypeConflict {
			conflictWarnings = append(conflictWarnings, "  CONFLICT: "+truncate(input.Content, 100))
		}
		saved++
	}
	return saved, conflictWarnings
}

func (t *LearnTool) saveChunk(ctx context.Context, input store.Input, projectRoot string) error {
	meta, err := store.OpenMetadata(input.Scope, projectRoot, t.logger)
	if err != nil {
		return err
	}
	defer meta.Close() //nolint:errcheck // handle is per-operation

	index, err := store.OpenSearchIndex(input.Scope, projectRoot, nil, t.logger)
	if err != nil {
		return err
	}
	defer index.Close() //nolint:errcheck // handle is per-operation

	inserted, err := meta.Insert(ctx, input)
	if err != nil {
		return err
	}
	return index.Index(ctx, inserted.ID, inserted.Content, inserted.Tags)
}

// maybeAutoCrystallize runs crystallize when enough chunks accumulated
// since the last run. Failures here never fail the learn call itself.
func (t *LearnTool) maybeAutoCrystallize(ctx context.Context, client llm.Client, cfg config.Config, projectRoot string) string {
	if cfg.AutoCrystallizeThreshold <= 0 {
		return ""
	}

	globalMeta, err := store.OpenMetadata(store.ScopeGlobal, "", t.logger)
	if err != nil {
		return fmt.Sprintf("Auto-crystallize check failed: %v", err)
	}

	since := time.Unix(0, 0)
	if raw, err := globalMeta.GetMeta(ctx, lastCrystallizeKey); err == nil && raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			since = parsed
		}
	}
	newCount, err := globalMeta.CountSince(ctx, since)
	_ = globalMeta.Close()
	if err != nil {
		return fmt.Sprintf("Auto-crystallize check failed: %v", err)
	}
	if newCount < cfg.AutoCrystallizeThreshold {
		return ""
	}

	allChunks := collectAllChunks(ctx, projectRoot, t.logger)
	report, err := extractor.Crystallize(ctx, client, allChunks, cfg.CrystallizeModel, projectRoot, t.logger)
	if err != nil {
		return fmt.Sprintf("Auto-crystallize failed: %v", err)
	}
	markCrystallized(ctx, t.logger)

	var parts []string
	if len(report.Created) > 0 {
		parts = append(parts, "created: "+strings.Join(report.Created, ", "))
	}
	if len(report.Updated) > 0 {
		parts = append(parts, "updated: "+strings.Join(report.Updated, ", "))
	}
	if len(report.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(report.Removed, ", "))
	}
	summary := strings.Join(parts, "; ")
	if summary == "" {
		summary = "no changes"
	}
	return fmt.Sprintf("Auto-crystallize triggered (%d chunks since last run): %s", newCount, summary)
}

// collectAllChunks gathers every chunk across global and project
// scopes; a missing partition contributes nothing.
func collectAllChunks(ctx context.Context, projectRoot string, logger zerolog.Logger) []store.Chunk {
	var all []store.Chunk
	forEachScope(ctx, "", projectRoot, false, logger, func(s ScopeStores) error {
		chunks, err := s.Meta.GetAll(ctx)
		if err != nil {
			return err
		}
		all = append(all, chunks...)
		return nil
	})
	return all
}

// markCrystallized records the crystallize timestamp in the global
// sidecar. Best-effort.
func markCrystallized(ctx context.Context, logger zerolog.Logger) {
	globalMeta, err := store.OpenMetadata(store.ScopeGlobal, "", logger)
	if err != nil {
		return
	}
	defer globalMeta.Close() //nolint:errcheck // handle is per-operation
	_ = globalMeta.SetMeta(ctx, lastCrystallizeKey, time.Now().Format(time.RFC3339))
}
