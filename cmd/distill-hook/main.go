// distill-hook handles PreCompact and SessionEnd lifecycle events. It
// receives the event payload as JSON on stdin, extracts knowledge from
// the session transcript and stores it. When the reasoning service is
// unreachable it records a pending-learn handoff instead, so the next
// session can run the learn tool.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/config"
	"github.com/distillmcp/distill/extractor"
	"github.com/distillmcp/distill/hooks"
	"github.com/distillmcp/distill/llm"
	"github.com/distillmcp/distill/logger"
	"github.com/distillmcp/distill/store"
)

type hookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "distill-hook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := logger.Init("")
	if err != nil {
		return err
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil || len(raw) == 0 {
		return errors.New("no input received on stdin")
	}

	var input hookInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return errors.New("invalid JSON on stdin")
	}
	if input.SessionID == "" || input.TranscriptPath == "" {
		return errors.New("missing session_id or transcript_path")
	}

	trigger := store.TriggerSessionEnd
	if input.HookEventName == "PreCompact" {
		trigger = store.TriggerPreCompact
	}

	projectRoot := store.DetectProjectRoot(input.Cwd)
	projectName := ""
	if projectRoot != "" {
		projectName = filepath.Base(projectRoot)
	}
	cfg := config.Load(projectRoot)

	log.Info().
		Str("session_id", input.SessionID).
		Str("trigger", string(trigger)).
		Msg("extracting from session transcript")

	client, err := llm.NewAnthropicClient(log)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		// Cannot extract now; hand off to the next session.
		return deferToNextSession(input, log)
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	inputs, err := extractor.Extract(ctx, client, extractor.Options{
		TranscriptPath:     input.TranscriptPath,
		SessionID:          input.SessionID,
		Trigger:            trigger,
		ProjectName:        projectName,
		ProjectRoot:        projectRoot,
		Model:              cfg.ExtractionModel,
		MaxTranscriptChars: cfg.MaxTranscriptChars,
	}, log)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	if len(inputs) == 0 {
		log.Info().Msg("no knowledge extracted")
		return nil
	}

	saved := 0
	for _, in := range inputs {
		if err := saveChunk(ctx, in, projectRoot, log); err != nil {
			log.Error().Err(err).Msg("failed to save chunk")
			continue
		}
		saved++
	}
	log.Info().Int("extracted", len(inputs)).Int("saved", saved).Msg("knowledge chunks saved")
	return nil
}

func saveChunk(ctx context.Context, input store.Input, projectRoot string, log zerolog.Logger) error {
	meta, err := store.OpenMetadata(input.Scope, projectRoot, log)
	if err != nil {
		return err
	}
	defer meta.Close() //nolint:errcheck // handle is per-operation

	index, err := store.OpenSearchIndex(input.Scope, projectRoot, nil, log)
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

func deferToNextSession(input hookInput, log zerolog.Logger) error {
	pending := hooks.PendingLearn{
		SessionID:      input.SessionID,
		TranscriptPath: input.TranscriptPath,
		Event:          input.HookEventName,
		Timestamp:      time.Now().Format(time.RFC3339),
	}
	if err := hooks.WritePending(pending); err != nil {
		return fmt.Errorf("record pending extraction: %w", err)
	}
	log.Info().Msg("reasoning service unavailable, recorded pending extraction for next session")
	return nil
}
