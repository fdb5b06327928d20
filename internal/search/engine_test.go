package search

import (
	"context"
	"errors"
	"testing"

	"github.com/mcpcontext/browser/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, bm25 *MockBM25Index, vec *MockVectorStore, embedder *MockEmbedder, metadata *MockMetadataStore) *Engine {
	t.Helper()
	if bm25 == nil {
		bm25 = &MockBM25Index{}
	}
	if vec == nil {
		vec = &MockVectorStore{}
	}
	if embedder == nil {
		embedder = &MockEmbedder{}
	}
	if metadata == nil {
		metadata = NewMockMetadataStore()
	}
	e, err := NewEngine(bm25, vec, embedder, metadata, DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestNewEngine_NilDependencies(t *testing.T) {
	bm25 := &MockBM25Index{}
	vec := &MockVectorStore{}
	embedder := &MockEmbedder{}
	metadata := NewMockMetadataStore()
	cfg := DefaultConfig()

	_, err := NewEngine(nil, vec, embedder, metadata, cfg)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(bm25, nil, embedder, metadata, cfg)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(bm25, vec, nil, metadata, cfg)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(bm25, vec, embedder, nil, cfg)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestCandidateLimit(t *testing.T) {
	assert.Equal(t, 50, candidateLimit(1))
	assert.Equal(t, 50, candidateLimit(10))
	assert.Equal(t, 80, candidateLimit(20))
	assert.Equal(t, 400, candidateLimit(100))
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil, nil)
	results, err := e.Search(context.Background(), "   ", SearchOptions{})
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestEngine_Search_FusesAndRanksByScore(t *testing.T) {
	metadata := NewMockMetadataStore()
	metadata.chunks["a"] = &store.Chunk{ID: "a", FilePath: "internal/foo.go", Content: "handler a"}
	metadata.chunks["b"] = &store.Chunk{ID: "b", FilePath: "internal/bar.go", Content: "handler b"}

	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return []*store.BM25Result{
				{DocID: "a", Score: 10, MatchedTerms: []string{"handler"}},
				{DocID: "b", Score: 2},
			}, nil
		},
	}
	vec := &MockVectorStore{
		SearchFn: func(context.Context, []float32, int) ([]*store.VectorResult, error) {
			return []*store.VectorResult{
				{ID: "a", Score: 0.9},
				{ID: "b", Score: 0.1},
			}, nil
		},
	}

	e := newTestEngine(t, bm25, vec, nil, metadata)

	results, err := e.Search(context.Background(), "handler", SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.True(t, results[0].Score > results[1].Score)
	assert.True(t, results[0].InBothLists)
}

func TestEngine_Search_BM25Only(t *testing.T) {
	metadata := NewMockMetadataStore()
	metadata.chunks["a"] = &store.Chunk{ID: "a", FilePath: "a.go", Content: "foo"}

	vecCalled := false
	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return []*store.BM25Result{{DocID: "a", Score: 5}}, nil
		},
	}
	vec := &MockVectorStore{
		SearchFn: func(context.Context, []float32, int) ([]*store.VectorResult, error) {
			vecCalled = true
			return nil, nil
		},
	}

	e := newTestEngine(t, bm25, vec, nil, metadata)

	results, err := e.Search(context.Background(), "foo", SearchOptions{Limit: 10, BM25Only: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, vecCalled, "vector search must not run when BM25Only is set")
}

func TestEngine_Search_DimensionMismatchFallsBackToBM25(t *testing.T) {
	metadata := NewMockMetadataStore()
	metadata.chunks["a"] = &store.Chunk{ID: "a", FilePath: "a.go", Content: "foo"}
	metadata.state[store.StateKeyIndexDimension] = "768"

	vecCalled := false
	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return []*store.BM25Result{{DocID: "a", Score: 5}}, nil
		},
	}
	vec := &MockVectorStore{
		SearchFn: func(context.Context, []float32, int) ([]*store.VectorResult, error) {
			vecCalled = true
			return nil, nil
		},
	}
	embedder := &MockEmbedder{DimensionsFn: func() int { return 384 }}

	e := newTestEngine(t, bm25, vec, embedder, metadata)

	results, err := e.Search(context.Background(), "foo", SearchOptions{Limit: 10, Explain: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, vecCalled)
	require.NotNil(t, results[0].Explain)
	assert.True(t, results[0].Explain.DimensionMismatch)
}

func TestEngine_Search_PartialFailureDegradesGracefully(t *testing.T) {
	metadata := NewMockMetadataStore()
	metadata.chunks["a"] = &store.Chunk{ID: "a", FilePath: "a.go", Content: "foo"}

	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return nil, errors.New("bm25 backend down")
		},
	}
	vec := &MockVectorStore{
		SearchFn: func(context.Context, []float32, int) ([]*store.VectorResult, error) {
			return []*store.VectorResult{{ID: "a", Score: 0.5}}, nil
		},
	}

	e := newTestEngine(t, bm25, vec, nil, metadata)

	results, err := e.Search(context.Background(), "foo", SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID)
}

func TestEngine_Search_BothBranchesFail(t *testing.T) {
	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return nil, errors.New("bm25 down")
		},
	}
	vec := &MockVectorStore{}
	embedder := &MockEmbedder{
		EmbedFn: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("embedder down")
		},
	}

	e := newTestEngine(t, bm25, vec, embedder, nil)

	_, err := e.Search(context.Background(), "foo", SearchOptions{Limit: 10})
	assert.Error(t, err)
}

func TestEngine_Search_AppliesTestFilePenaltyAndPathBoost(t *testing.T) {
	metadata := NewMockMetadataStore()
	metadata.chunks["test"] = &store.Chunk{ID: "test", FilePath: "internal/search/engine_test.go", Content: "func TestSearch"}
	metadata.chunks["wrapper"] = &store.Chunk{ID: "wrapper", FilePath: "cmd/ctxbrowser/cmd/search.go", Content: "func Search"}
	metadata.chunks["impl"] = &store.Chunk{ID: "impl", FilePath: "internal/search/engine.go", Content: "func Search"}

	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return []*store.BM25Result{
				{DocID: "test", Score: 10},
				{DocID: "wrapper", Score: 10},
				{DocID: "impl", Score: 9},
			}, nil
		},
	}

	e := newTestEngine(t, bm25, nil, nil, metadata)

	results, err := e.Search(context.Background(), "search", SearchOptions{Limit: 10, BM25Only: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	// The test file and CLI wrapper should both rank below the implementation
	// despite starting with equal or higher raw BM25 scores.
	assert.Equal(t, "impl", results[0].Chunk.ID)
}

func TestEngine_Search_RespectsLimit(t *testing.T) {
	metadata := NewMockMetadataStore()
	for _, id := range []string{"a", "b", "c"} {
		metadata.chunks[id] = &store.Chunk{ID: id, FilePath: id + ".go"}
	}

	bm25 := &MockBM25Index{
		SearchFn: func(context.Context, string, int) ([]*store.BM25Result, error) {
			return []*store.BM25Result{
				{DocID: "a", Score: 3},
				{DocID: "b", Score: 2},
				{DocID: "c", Score: 1},
			}, nil
		},
	}

	e := newTestEngine(t, bm25, nil, nil, metadata)

	results, err := e.Search(context.Background(), "x", SearchOptions{Limit: 2, BM25Only: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEngine_Index_StoresChunksAndEmbeddingInfo(t *testing.T) {
	metadata := NewMockMetadataStore()
	bm25 := &MockBM25Index{}
	vec := &MockVectorStore{}
	embedder := &MockEmbedder{DimensionsFn: func() int { return 384 }, ModelNameFn: func() string { return "test-model" }}

	e := newTestEngine(t, bm25, vec, embedder, metadata)

	chunks := []*store.Chunk{{ID: "a", Content: "foo"}}
	err := e.Index(context.Background(), chunks)
	require.NoError(t, err)

	assert.Equal(t, chunks[0], metadata.chunks["a"])

	dim, _ := metadata.GetState(context.Background(), store.StateKeyIndexDimension)
	assert.Equal(t, "384", dim)
	model, _ := metadata.GetState(context.Background(), store.StateKeyIndexModel)
	assert.Equal(t, "test-model", model)
}

func TestEngine_Index_EmptyChunksNoop(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil, nil)
	err := e.Index(context.Background(), nil)
	assert.NoError(t, err)
}

func TestEngine_Delete(t *testing.T) {
	metadata := NewMockMetadataStore()
	metadata.chunks["a"] = &store.Chunk{ID: "a"}

	e := newTestEngine(t, nil, nil, nil, metadata)
	err := e.Delete(context.Background(), []string{"a"})
	require.NoError(t, err)
	_, ok := metadata.chunks["a"]
	assert.False(t, ok)
}

func TestEngine_Stats(t *testing.T) {
	bm25 := &MockBM25Index{StatsFn: func() *store.IndexStats { return &store.IndexStats{DocumentCount: 5} }}
	vec := &MockVectorStore{CountFn: func() int { return 7 }}

	e := newTestEngine(t, bm25, vec, nil, nil)
	stats := e.Stats()
	assert.Equal(t, 5, stats.BM25Stats.DocumentCount)
	assert.Equal(t, 7, stats.VectorCount)
}

func TestEngine_CalculateHighlights(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil, nil)
	highlights := e.calculateHighlights("func Handler() { return Handler }", []string{"Handler"})
	require.Len(t, highlights, 2)
	assert.Equal(t, 5, highlights[0].Start)
}

func TestEngine_ApplyDefaults_ClampsLimit(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil, nil)

	opts := e.applyDefaults(SearchOptions{})
	assert.Equal(t, e.config.DefaultLimit, opts.Limit)

	opts = e.applyDefaults(SearchOptions{Limit: 1000})
	assert.Equal(t, e.config.MaxLimit, opts.Limit)
}
