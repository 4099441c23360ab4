package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicClient reads ANTHROPIC_API_KEY from the environment.
// A missing key is ErrMissingAPIKey; nothing downstream can proceed
// without the reasoning service.
func NewAnthropicClient(logger zerolog.Logger) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client: &client,
		logger: logger.With().Str("component", "anthropic_client").Logger(),
	}, nil
}

// Complete performs one completion, retrying transient API failures
// with exponential backoff. The system block carries prompt caching
// since extraction reuses the same system prompt every session.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", fmt.Errorf("model is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	var message *anthropic.Message
	operation := func() error {
		var err error
		message, err = c.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				c.logger.Warn().Err(err).Msg("transient reasoning-service error, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 2 * time.Second
	expo.MaxElapsedTime = 90 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(expo, ctx)); err != nil {
		return "", fmt.Errorf("reasoning service call failed: %w", err)
	}

	var sb strings.Builder
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(block.Text)
		}
	}

	c.logger.Debug().
		Str("model", req.Model).
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Msg("completion finished")

	return sb.String(), nil
}

func isRetryable(err error) bool {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 408, 429, 500, 502, 503, 529:
			return true
		}
		return false
	}
	// Transport-level failures without an API status are worth one
	// more attempt.
	return true
}
