package store

import (
	"sync"
	"testing"
)

func TestSharedEmbedderConstructsOnce(t *testing.T) {
	t.Cleanup(ResetSharedEmbedder)

	var mu sync.Mutex
	constructions := 0
	SetSharedEmbedderFactory(func() (Embedder, error) {
		mu.Lock()
		constructions++
		mu.Unlock()
		return stubEmbedder{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := SharedEmbedder(); err != nil {
				t.Errorf("SharedEmbedder: %v", err)
			}
		}()
	}
	wg.Wait()

	if constructions != 1 {
		t.Errorf("expected a single construction, got %d", constructions)
	}
}

func TestSetSharedEmbedderFactoryResets(t *testing.T) {
	t.Cleanup(ResetSharedEmbedder)

	SetSharedEmbedderFactory(func() (Embedder, error) {
		return stubEmbedder{}, nil
	})
	first, err := SharedEmbedder()
	if err != nil {
		t.Fatal(err)
	}

	replacement := &semanticEmbedder{dimensions: 8}
	SetSharedEmbedderFactory(func() (Embedder, error) {
		return replacement, nil
	})
	second, err := SharedEmbedder()
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("expected a fresh provider after factory swap")
	}
	if second != replacement {
		t.Error("expected the replacement provider")
	}
}
