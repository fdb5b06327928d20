// Package provider implements the provider registry and hot-swappable
// Handle described in SPEC_FULL.md §4.1: Embedder, VectorStore, and Cache
// are capability contracts with compile-time-registered concrete
// implementations. Handle gives a reader a self-consistent binding for one
// call; collection.Registry binds its providers directly, without a Handle.
package provider

import (
	"context"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStore persists and searches dense embeddings.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Cache is a generic byte-keyed cache. The "lru" implementation is
// registered, but no component in this module constructs a Cache.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
	Len() int
}

// EmbedderFactory constructs an Embedder from provider-specific config.
type EmbedderFactory func(ctx context.Context, cfg map[string]string) (Embedder, error)

// VectorStoreFactory constructs a VectorStore from provider-specific config.
type VectorStoreFactory func(ctx context.Context, cfg map[string]string) (VectorStore, error)

// CacheFactory constructs a Cache from provider-specific config.
type CacheFactory func(cfg map[string]string) (Cache, error)
