// Package llm is the narrow contract to the external reasoning
// service: a prompt goes in, free-form text comes out. Extraction and
// crystallization both speak through it and treat the service as an
// opaque collaborator.
package llm

import (
	"context"
	"errors"
)

// ErrMissingAPIKey means the reasoning service cannot be reached at
// all. Callers treat this as fatal for the whole operation.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY environment variable is required")

// Request is a single completion call.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int64
}

// Client is the reasoning-service capability.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
