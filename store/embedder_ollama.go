package store

import (
	"context"
	"fmt"
	"os"

	"github.com/ollama/ollama/api"
)

// defaultOllamaModel is a small sentence-embedding model (384 dims),
// cheap enough to run per chunk on commodity hardware.
const defaultOllamaModel = "all-minilm"

type ollamaEmbedder struct {
	client *api.Client
	model  string
}

func newOllamaEmbedder() (Embedder, error) {
	cli, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	model := os.Getenv("DISTILL_EMBED_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}
	return &ollamaEmbedder{client: cli, model: model}, nil
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return resp.Embeddings[0], nil
}
