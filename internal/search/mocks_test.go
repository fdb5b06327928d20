package search

import (
	"context"
	"time"

	"github.com/mcpcontext/browser/internal/store"
)

// MockBM25Index is a function-field stub of store.BM25Index for engine tests.
type MockBM25Index struct {
	SearchFn func(ctx context.Context, query string, limit int) ([]*store.BM25Result, error)
	StatsFn  func() *store.IndexStats
}

func (m *MockBM25Index) Index(context.Context, []*store.Document) error { return nil }

func (m *MockBM25Index) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *MockBM25Index) Delete(context.Context, []string) error { return nil }
func (m *MockBM25Index) AllIDs() ([]string, error)              { return nil, nil }

func (m *MockBM25Index) Stats() *store.IndexStats {
	if m.StatsFn != nil {
		return m.StatsFn()
	}
	return &store.IndexStats{}
}

func (m *MockBM25Index) Save(string) error { return nil }
func (m *MockBM25Index) Load(string) error { return nil }
func (m *MockBM25Index) Close() error      { return nil }

// MockVectorStore is a function-field stub of store.VectorStore for engine tests.
type MockVectorStore struct {
	SearchFn func(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
	CountFn  func() int
}

func (m *MockVectorStore) Add(context.Context, []string, [][]float32) error { return nil }

func (m *MockVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, k)
	}
	return nil, nil
}

func (m *MockVectorStore) Delete(context.Context, []string) error { return nil }
func (m *MockVectorStore) AllIDs() []string                       { return nil }
func (m *MockVectorStore) Contains(string) bool                   { return false }

func (m *MockVectorStore) Count() int {
	if m.CountFn != nil {
		return m.CountFn()
	}
	return 0
}

func (m *MockVectorStore) Save(string) error { return nil }
func (m *MockVectorStore) Load(string) error { return nil }
func (m *MockVectorStore) Close() error      { return nil }

// MockEmbedder is a function-field stub of embedpipeline.Embedder for engine tests.
type MockEmbedder struct {
	EmbedFn      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFn func(ctx context.Context, texts []string) ([][]float32, error)
	DimensionsFn func() int
	ModelNameFn  func() string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, text)
	}
	return make([]float32, m.Dimensions()), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFn != nil {
		return m.EmbedBatchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.Dimensions())
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.DimensionsFn != nil {
		return m.DimensionsFn()
	}
	return 768
}

func (m *MockEmbedder) ModelName() string {
	if m.ModelNameFn != nil {
		return m.ModelNameFn()
	}
	return "mock-embedder"
}

func (m *MockEmbedder) Available(context.Context) bool { return true }
func (m *MockEmbedder) Close() error                    { return nil }

// MockMetadataStore is a function-field stub of store.MetadataStore for engine
// tests, backed by an in-memory chunk map for the chunk-retrieval paths
// engine.go actually exercises.
type MockMetadataStore struct {
	chunks map[string]*store.Chunk
	state  map[string]string

	GetChunksFn func(ctx context.Context, ids []string) ([]*store.Chunk, error)
}

func NewMockMetadataStore() *MockMetadataStore {
	return &MockMetadataStore{
		chunks: make(map[string]*store.Chunk),
		state:  make(map[string]string),
	}
}

func (m *MockMetadataStore) SaveProject(context.Context, *store.Project) error { return nil }
func (m *MockMetadataStore) GetProject(context.Context, string) (*store.Project, error) {
	return nil, nil
}
func (m *MockMetadataStore) UpdateProjectStats(context.Context, string, int, int) error { return nil }
func (m *MockMetadataStore) RefreshProjectStats(context.Context, string) error          { return nil }

func (m *MockMetadataStore) SaveFiles(context.Context, []*store.File) error { return nil }
func (m *MockMetadataStore) GetFileByPath(context.Context, string, string) (*store.File, error) {
	return nil, nil
}
func (m *MockMetadataStore) GetChangedFiles(context.Context, string, time.Time) ([]*store.File, error) {
	return nil, nil
}
func (m *MockMetadataStore) ListFiles(context.Context, string, string, int) ([]*store.File, string, error) {
	return nil, "", nil
}
func (m *MockMetadataStore) GetFilePathsByProject(context.Context, string) ([]string, error) {
	return nil, nil
}
func (m *MockMetadataStore) GetFilesForReconciliation(context.Context, string) (map[string]*store.File, error) {
	return nil, nil
}
func (m *MockMetadataStore) ListFilePathsUnder(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (m *MockMetadataStore) DeleteFile(context.Context, string) error           { return nil }
func (m *MockMetadataStore) DeleteFilesByProject(context.Context, string) error { return nil }

func (m *MockMetadataStore) SaveChunks(_ context.Context, chunks []*store.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MockMetadataStore) GetChunk(_ context.Context, id string) (*store.Chunk, error) {
	return m.chunks[id], nil
}

func (m *MockMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	if m.GetChunksFn != nil {
		return m.GetChunksFn(ctx, ids)
	}
	out := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockMetadataStore) GetChunksByFile(_ context.Context, fileID string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, c := range m.chunks {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockMetadataStore) DeleteChunks(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.chunks, id)
	}
	return nil
}

func (m *MockMetadataStore) DeleteChunksByFile(context.Context, string) error { return nil }

func (m *MockMetadataStore) SearchSymbols(context.Context, string, int) ([]*store.Symbol, error) {
	return nil, nil
}

func (m *MockMetadataStore) GetState(_ context.Context, key string) (string, error) {
	return m.state[key], nil
}

func (m *MockMetadataStore) SetState(_ context.Context, key, value string) error {
	m.state[key] = value
	return nil
}

func (m *MockMetadataStore) SaveChunkEmbeddings(context.Context, []string, [][]float32, string) error {
	return nil
}
func (m *MockMetadataStore) GetAllEmbeddings(context.Context) (map[string][]float32, error) {
	return nil, nil
}
func (m *MockMetadataStore) GetEmbeddingStats(context.Context) (int, int, error) { return 0, 0, nil }

func (m *MockMetadataStore) SaveIndexCheckpoint(context.Context, string, int, int, string) error {
	return nil
}
func (m *MockMetadataStore) LoadIndexCheckpoint(context.Context) (*store.IndexCheckpoint, error) {
	return nil, nil
}
func (m *MockMetadataStore) ClearIndexCheckpoint(context.Context) error { return nil }

func (m *MockMetadataStore) Close() error { return nil }
