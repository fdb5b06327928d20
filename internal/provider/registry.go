package provider

import (
	"context"
	"fmt"
	"sync"
)

// registry aggregates the compile-time-known factories. Go has no
// build-time distributed-slice registration without codegen, so each
// adapter file registers itself from an init() — the same pattern the
// teacher uses to register Bleve's custom tokenizer/analyzer.
var (
	mu              sync.Mutex
	embedderFacts   = map[string]EmbedderFactory{}
	vectorStoreFacts = map[string]VectorStoreFactory{}
	cacheFacts      = map[string]CacheFactory{}
)

func RegisterEmbedder(name string, f EmbedderFactory) {
	mu.Lock()
	defer mu.Unlock()
	embedderFacts[name] = f
}

func RegisterVectorStore(name string, f VectorStoreFactory) {
	mu.Lock()
	defer mu.Unlock()
	vectorStoreFacts[name] = f
}

func RegisterCache(name string, f CacheFactory) {
	mu.Lock()
	defer mu.Unlock()
	cacheFacts[name] = f
}

// NewEmbedder builds the named embedder. There is no silent fallback to a
// different provider on failure — the teacher's factory explicitly removed
// that behavior after incidents where a misconfigured provider silently
// downgraded to the static embedder and corrupted an index with
// mismatched-dimension vectors (teacher BUG-041/073); this registry
// preserves that policy.
func NewEmbedder(ctx context.Context, name string, cfg map[string]string) (Embedder, error) {
	mu.Lock()
	f, ok := embedderFacts[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("embedder %q is not registered", name)
	}
	return f(ctx, cfg)
}

func NewVectorStore(ctx context.Context, name string, cfg map[string]string) (VectorStore, error) {
	mu.Lock()
	f, ok := vectorStoreFacts[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vector store %q is not registered", name)
	}
	return f(ctx, cfg)
}

func NewCache(name string, cfg map[string]string) (Cache, error) {
	mu.Lock()
	f, ok := cacheFacts[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("cache %q is not registered", name)
	}
	return f(cfg)
}

// EmbedderNames lists registered embedder provider names.
func EmbedderNames() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(embedderFacts))
	for n := range embedderFacts {
		names = append(names, n)
	}
	return names
}

// VectorStoreNames lists registered vector store provider names.
func VectorStoreNames() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(vectorStoreFacts))
	for n := range vectorStoreFacts {
		names = append(names, n)
	}
	return names
}
