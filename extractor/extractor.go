// Package extractor turns raw conversation transcripts into validated
// knowledge records, and consolidates accumulated records into rule
// documents. Both pipelines speak to the reasoning service through the
// llm.Client contract and degrade to fewer results rather than failing
// on malformed service output.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/distillmcp/distill/llm"
	"github.com/distillmcp/distill/store"
)

// Options names the inputs of one extraction run.
type Options struct {
	TranscriptPath string
	SessionID      string
	Trigger        store.Trigger
	ProjectName    string
	ProjectRoot    string
	// ScopeOverride forces every extraction into one scope. Empty means
	// each candidate keeps its own classification.
	ScopeOverride store.Scope
	Model         string
	// MaxTranscriptChars bounds the formatted transcript; older turns
	// are dropped beyond it.
	MaxTranscriptChars int
}

// rawExtraction is one candidate as the reasoning service emits it,
// before validation.
type rawExtraction struct {
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Scope      string   `json:"scope"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// Extract runs the full pipeline: parse, truncate, one reasoning-service
// call, validate, map to store inputs. Transcripts with fewer than two
// turns short-circuit to an empty result without a service call.
func Extract(ctx context.Context, client llm.Client, opts Options, logger zerolog.Logger) ([]store.Input, error) {
	log := logger.With().Str("component", "extractor").Logger()

	turns, err := ParseTranscript(opts.TranscriptPath)
	if err != nil {
		return nil, err
	}
	if len(turns) < 2 {
		log.Debug().Int("turns", len(turns)).Msg("transcript too short, skipping extraction")
		return nil, nil
	}

	maxChars := opts.MaxTranscriptChars
	if maxChars <= 0 {
		maxChars = 100_000
	}
	formatted := FormatTranscript(turns)
	if len(formatted) > maxChars {
		formatted = TruncateToRecent(turns, maxChars)
		log.Debug().Int("max_chars", maxChars).Msg("transcript truncated to recent turns")
	}

	existingRules := ReadExistingRules(opts.ProjectRoot)

	response, err := client.Complete(ctx, llm.Request{
		Model:     opts.Model,
		System:    extractionSystemPrompt,
		Prompt:    buildExtractionPrompt(formatted, opts.ProjectName, existingRules),
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	candidates := parseExtractionResponse(response)
	log.Info().
		Int("turns", len(turns)).
		Int("extracted", len(candidates)).
		Str("session_id", opts.SessionID).
		Msg("extraction complete")
	if len(candidates) == 0 {
		return nil, nil
	}

	now := time.Now()
	return lo.Map(candidates, func(r rawExtraction, _ int) store.Input {
		scope := store.Scope(r.Scope)
		if opts.ScopeOverride != "" {
			scope = opts.ScopeOverride
		}
		var project *string
		if scope == store.ScopeProject && opts.ProjectName != "" {
			project = &opts.ProjectName
		}
		return store.Input{
			Content:    r.Content,
			Type:       store.Type(r.Type),
			Scope:      scope,
			Project:    project,
			Tags:       r.Tags,
			Confidence: r.Confidence,
			Source: store.Source{
				SessionID: opts.SessionID,
				Timestamp: now,
				Trigger:   opts.Trigger,
			},
		}
	}), nil
}

// parseExtractionResponse is deliberately forgiving: no array in the
// text, or an unparseable array, yields zero candidates; individually
// invalid candidates are dropped while the rest survive. Elements are
// decoded one by one so a type mismatch in one candidate cannot take
// its siblings down with it.
func parseExtractionResponse(text string) []rawExtraction {
	arr := llm.ExtractJSONArray(text)
	if arr == "" {
		return nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &elements); err != nil {
		return nil
	}

	return lo.FilterMap(elements, func(raw json.RawMessage, _ int) (rawExtraction, bool) {
		var r rawExtraction
		if err := json.Unmarshal(raw, &r); err != nil {
			return rawExtraction{}, false
		}
		valid := r.Content != "" &&
			store.ValidType(store.Type(r.Type)) &&
			store.ValidScope(store.Scope(r.Scope)) &&
			r.Tags != nil &&
			r.Confidence >= 0 && r.Confidence <= 1
		return r, valid
	})
}
