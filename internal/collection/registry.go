// Package collection builds and caches the per-collection dependency set —
// stores, embedder, chunkers, and a hybrid search engine — that
// internal/index and internal/search need to operate on one repository.
// internal/mcpserver and cmd/ctxbrowser/cmd both go through this registry
// instead of each re-deriving store/embedder wiring, which is the thin
// adapter the spec's [OUT OF SCOPE interface] section calls for.
package collection

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mcpcontext/browser/internal/chunk"
	"github.com/mcpcontext/browser/internal/config"
	"github.com/mcpcontext/browser/internal/index"
	"github.com/mcpcontext/browser/internal/provider"
	"github.com/mcpcontext/browser/internal/search"
	"github.com/mcpcontext/browser/internal/store"
	"github.com/mcpcontext/browser/internal/telemetry"
)

// Collection bundles the fully-wired dependencies for one repository.
type Collection struct {
	ID     string
	Root   string
	DataDir string
	Deps   index.CollectionDeps
	Engine *search.Engine
}

// Registry opens collections by path, caching the wiring by collection ID,
// and owns the single Coordinator shared across every collection (the
// coordinator's own global semaphore bounds cross-collection concurrency).
type Registry struct {
	Coordinator *index.Coordinator
	metrics     *telemetry.Metrics

	mu    sync.Mutex
	byID  map[string]*Collection
}

// NewRegistry returns a Registry. metrics may be nil to disable telemetry.
func NewRegistry(globalConcurrency int64, metrics *telemetry.Metrics) *Registry {
	return &Registry{
		Coordinator: index.NewCoordinator(globalConcurrency, metrics),
		metrics:     metrics,
		byID:        make(map[string]*Collection),
	}
}

// Open resolves path to a collection, building and caching its dependencies
// on first use. Later calls with a path under the same repository root
// return the cached Collection.
func (r *Registry) Open(ctx context.Context, path string) (*Collection, error) {
	id, root, err := index.ResolveCollection(path)
	if err != nil {
		return nil, fmt.Errorf("resolve collection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byID[id]; ok {
		return c, nil
	}

	c, err := r.build(ctx, id, root)
	if err != nil {
		return nil, err
	}
	r.byID[id] = c
	return c, nil
}

func (r *Registry) build(ctx context.Context, id, root string) (*Collection, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dataDir := filepath.Join(root, ".ctxbrowser")

	metadata, err := store.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "lexical"), store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open embedder: %w", err)
	}

	dims := cfg.Embeddings.Dimensions
	if dims <= 0 {
		dims = embedder.Dimensions()
	}
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	deps := index.CollectionDeps{
		CollectionID: id,
		RootPath:     root,
		DataDir:      dataDir,
		Config:       cfg,
		Metadata:     metadata,
		BM25:         bm25,
		Vector:       vector,
		Embedder:     embedder,
		CodeChunker:  chunk.NewCodeChunker(),
		MDChunker:    chunk.NewMarkdownChunker(),
	}
	if cfg.Contextual.Enabled {
		deps.ContextGen = index.NewPatternContextGenerator(cfg)
	}

	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.DefaultConfig(), search.WithMetrics(r.metrics, id))
	if err != nil {
		return nil, fmt.Errorf("build search engine: %w", err)
	}

	return &Collection{ID: id, Root: root, DataDir: dataDir, Deps: deps, Engine: engine}, nil
}

// newEmbedder selects a provider by cfg.Embeddings.Provider, defaulting to
// the dependency-free static embedder when unset so a first-run collection
// never blocks on an external service being reachable.
func newEmbedder(ctx context.Context, cfg *config.Config) (provider.Embedder, error) {
	name := cfg.Embeddings.Provider
	if name == "" {
		name = "static"
	}
	providerCfg := map[string]string{
		"model":    cfg.Embeddings.Model,
		"base_url": cfg.Embeddings.OllamaHost,
	}
	return provider.NewEmbedder(ctx, name, providerCfg)
}

// Close releases every opened collection's stores and engine.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for _, c := range r.byID {
		if cerr := c.Engine.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}
