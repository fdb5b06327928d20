package provider

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mcpcontext/browser/internal/store"
)

func init() {
	RegisterVectorStore("hnsw", newHNSWVectorStore)
}

// hnswAdapter wraps the in-process store.HNSWStore (grounded on the
// teacher's internal/store/hnsw.go) behind the provider.VectorStore
// contract, for the filesystem-backed single-process deployment mode.
type hnswAdapter struct {
	inner *store.HNSWStore
	dims  int
}

func newHNSWVectorStore(_ context.Context, cfg map[string]string) (VectorStore, error) {
	dims, err := strconv.Atoi(cfg["dimensions"])
	if err != nil || dims <= 0 {
		return nil, fmt.Errorf("hnsw vector store: invalid or missing dimensions: %q", cfg["dimensions"])
	}
	vsCfg := store.DefaultVectorStoreConfig(dims)
	if m := cfg["metric"]; m != "" {
		vsCfg.Metric = m
	}
	s, err := store.NewHNSWStore(vsCfg)
	if err != nil {
		return nil, fmt.Errorf("hnsw vector store: %w", err)
	}
	return &hnswAdapter{inner: s, dims: dims}, nil
}

func (a *hnswAdapter) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return a.inner.Add(ctx, ids, vectors)
}

func (a *hnswAdapter) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	results, err := a.inner.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]VectorResult, len(results))
	for i, r := range results {
		out[i] = VectorResult{ID: r.ID, Distance: r.Distance, Score: r.Score}
	}
	return out, nil
}

func (a *hnswAdapter) Delete(ctx context.Context, ids []string) error { return a.inner.Delete(ctx, ids) }
func (a *hnswAdapter) Contains(id string) bool                       { return a.inner.Contains(id) }
func (a *hnswAdapter) Count() int                                    { return a.inner.Count() }
func (a *hnswAdapter) Dimensions() int                                { return a.dims }
func (a *hnswAdapter) Save(path string) error                        { return a.inner.Save(path) }
func (a *hnswAdapter) Load(path string) error                        { return a.inner.Load(path) }
func (a *hnswAdapter) Close() error                                  { return a.inner.Close() }
