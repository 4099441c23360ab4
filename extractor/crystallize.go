package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/distillmcp/distill/llm"
	"github.com/distillmcp/distill/store"
)

// crystallizeOp is one rule-document operation proposed by the
// reasoning service.
type crystallizeOp struct {
	Topic        string   `json:"topic"`
	Action       string   `json:"action"`
	Rules        []string `json:"rules"`
	SourceIDs    []string `json:"source_ids"`
	ExistingFile string   `json:"existing_file,omitempty"`
}

// Report says what crystallize actually did, not what was proposed.
type Report struct {
	Created    []string `json:"created"`
	Updated    []string `json:"updated"`
	Removed    []string `json:"removed"`
	TotalRules int      `json:"total_rules"`
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Crystallize consolidates chunks into rule documents under the scope's
// rules directory. Empty input returns a zero report with no service
// call. A service failure is fatal; a filesystem failure applying one
// operation is isolated so the rest still apply.
func Crystallize(ctx context.Context, client llm.Client, chunks []store.Chunk, model, projectRoot string, logger zerolog.Logger) (Report, error) {
	log := logger.With().Str("component", "crystallize").Logger()
	report := Report{Created: []string{}, Updated: []string{}, Removed: []string{}}

	if len(chunks) == 0 {
		return report, nil
	}

	scope := store.ScopeGlobal
	if projectRoot != "" {
		scope = store.ScopeProject
	}
	rulesDir, err := store.RulesDir(scope, projectRoot)
	if err != nil {
		return report, err
	}

	response, err := client.Complete(ctx, llm.Request{
		Model:     model,
		System:    crystallizeSystemPrompt,
		Prompt:    buildCrystallizePrompt(formatChunkListing(chunks), ReadExistingRules(projectRoot)),
		MaxTokens: 8192,
	})
	if err != nil {
		return report, fmt.Errorf("crystallize call: %w", err)
	}

	ops := parseCrystallizeResponse(response)
	log.Info().Int("chunks", len(chunks)).Int("operations", len(ops)).Msg("crystallize proposed operations")

	for _, op := range ops {
		filename := op.ExistingFile
		if filename == "" {
			filename = ruleFileName(op.Topic)
		}
		path := filepath.Join(rulesDir, filename)

		switch op.Action {
		case "create", "update":
			if err := writeRuleDocument(path, op); err != nil {
				log.Warn().Err(err).Str("file", filename).Msg("failed to write rule document")
				continue
			}
			if op.Action == "create" {
				report.Created = append(report.Created, filename)
			} else {
				report.Updated = append(report.Updated, filename)
			}
			report.TotalRules += len(op.Rules)
		case "remove":
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("file", filename).Msg("failed to remove rule document")
				continue
			}
			report.Removed = append(report.Removed, filename)
		}
	}

	return report, nil
}

// parseCrystallizeResponse mirrors extraction parsing: best-effort
// array location, then per-operation decoding and validation with
// silent drops, so one malformed operation never discards the rest.
func parseCrystallizeResponse(text string) []crystallizeOp {
	arr := llm.ExtractJSONArray(text)
	if arr == "" {
		return nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &elements); err != nil {
		return nil
	}

	return lo.FilterMap(elements, func(raw json.RawMessage, _ int) (crystallizeOp, bool) {
		var op crystallizeOp
		if err := json.Unmarshal(raw, &op); err != nil {
			return crystallizeOp{}, false
		}
		validAction := op.Action == "create" || op.Action == "update" || op.Action == "remove"
		return op, validAction && op.Topic != "" && op.Rules != nil && op.SourceIDs != nil
	})
}

func formatChunkListing(chunks []store.Chunk) string {
	lines := lo.Map(chunks, func(c store.Chunk, _ int) string {
		return fmt.Sprintf("- [%s] (%s, confidence %.2f) %s", c.ID, c.Type, c.Confidence, c.Content)
	})
	return strings.Join(lines, "\n")
}

// ruleFileName derives a deterministic filename from the topic.
func ruleFileName(topic string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(topic), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "untitled"
	}
	return rulePrefix + slug + ".md"
}

func writeRuleDocument(path string, op crystallizeOp) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rules dir: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", op.Topic)
	fmt.Fprintf(&sb, "Generated by distill on %s\n\n", time.Now().Format("2006-01-02"))
	for _, rule := range op.Rules {
		fmt.Fprintf(&sb, "- %s\n", rule)
	}
	if len(op.SourceIDs) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, id := range op.SourceIDs {
			fmt.Fprintf(&sb, "- %s\n", id)
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write rule document: %w", err)
	}
	return nil
}
