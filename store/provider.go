package store

import (
	"fmt"
	"os"
	"sync"
)

// The embedding model loads slowly relative to everything else the
// process does, so one provider is shared by every SearchIndex
// instance. Construction happens at most once per process behind a
// single-initialization guard; concurrent first uses collapse onto the
// same sync.Once.
var (
	sharedMu       sync.Mutex
	sharedOnce     *sync.Once = new(sync.Once)
	sharedEmbedder Embedder
	sharedErr      error

	// newSharedEmbedder is swapped by tests via SetSharedEmbedderFactory.
	newSharedEmbedder = defaultEmbedderFactory
)

// SharedEmbedder returns the process-wide embedding provider,
// constructing it on first use. A failed construction is sticky until
// ResetSharedEmbedder.
func SharedEmbedder() (Embedder, error) {
	sharedMu.Lock()
	once := sharedOnce
	sharedMu.Unlock()

	once.Do(func() {
		sharedEmbedder, sharedErr = newSharedEmbedder()
	})
	return sharedEmbedder, sharedErr
}

// SetSharedEmbedderFactory overrides provider construction. Test
// harnesses use it together with ResetSharedEmbedder; production code
// never calls it.
func SetSharedEmbedderFactory(factory func() (Embedder, error)) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	newSharedEmbedder = factory
	sharedOnce = new(sync.Once)
	sharedEmbedder = nil
	sharedErr = nil
}

// ResetSharedEmbedder discards the shared provider so the next use
// constructs a fresh one. Test hook only.
func ResetSharedEmbedder() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedOnce = new(sync.Once)
	sharedEmbedder = nil
	sharedErr = nil
	newSharedEmbedder = defaultEmbedderFactory
}

// defaultEmbedderFactory picks the provider from the environment:
// DISTILL_EMBEDDER=openai selects the OpenAI embedding API, anything
// else (or unset) selects a local Ollama model.
func defaultEmbedderFactory() (Embedder, error) {
	switch os.Getenv("DISTILL_EMBEDDER") {
	case "openai":
		embedder, err := newOpenAIEmbedder()
		if err != nil {
			return nil, fmt.Errorf("construct openai embedder: %w", err)
		}
		return embedder, nil
	default:
		embedder, err := newOllamaEmbedder()
		if err != nil {
			return nil, fmt.Errorf("construct ollama embedder: %w", err)
		}
		return embedder, nil
	}
}
