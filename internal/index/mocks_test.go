package index

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/mcpcontext/browser/internal/errs"
	"github.com/mcpcontext/browser/internal/store"
)

// errTransientEmbedding simulates a retryable provider failure.
var errTransientEmbedding = errs.Transient("embedder overloaded", nil)

// fakeBM25Index is a function-field-free, in-memory store.BM25Index for
// pipeline/coordinator tests, grounded on search.MockBM25Index but backed by
// a real map so deletes and AllIDs are observable.
type fakeBM25Index struct {
	mu   sync.Mutex
	docs map[string]*store.Document
}

func newFakeBM25Index() *fakeBM25Index {
	return &fakeBM25Index{docs: make(map[string]*store.Document)}
}

func (f *fakeBM25Index) Index(_ context.Context, docs []*store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeBM25Index) Search(context.Context, string, int) ([]*store.BM25Result, error) {
	return nil, nil
}

func (f *fakeBM25Index) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeBM25Index) AllIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBM25Index) Stats() *store.IndexStats { return &store.IndexStats{} }
func (f *fakeBM25Index) Save(string) error        { return nil }
func (f *fakeBM25Index) Load(string) error        { return nil }
func (f *fakeBM25Index) Close() error             { return nil }

// fakeVectorStore is an in-memory store.VectorStore.
type fakeVectorStore struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{vectors: make(map[string][]float32)}
}

func (f *fakeVectorStore) Add(_ context.Context, ids []string, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		f.vectors[id] = vectors[i]
	}
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int) ([]*store.VectorResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.vectors, id)
	}
	return nil
}

func (f *fakeVectorStore) AllIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.vectors))
	for id := range f.vectors {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeVectorStore) Contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vectors[id]
	return ok
}

func (f *fakeVectorStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors)
}

func (f *fakeVectorStore) Save(string) error { return nil }
func (f *fakeVectorStore) Load(string) error { return nil }
func (f *fakeVectorStore) Close() error      { return nil }

// fakeEmbedder derives a deterministic vector from each text's hash, so
// tests can assert on embedding output without a real model.
type fakeEmbedder struct {
	dims      int
	model     string
	failAfter int
	calls     int
	delay     time.Duration
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims, model: "fake-embedder", failAfter: -1}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failAfter >= 0 && f.calls > f.failAfter {
		return nil, errTransientEmbedding
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		v := make([]float32, f.dims)
		for j := range v {
			v[j] = float32(sum[j%len(sum)]) / 255.0
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int           { return f.dims }
func (f *fakeEmbedder) ModelName() string         { return f.model }
func (f *fakeEmbedder) Available(context.Context) bool { return true }
func (f *fakeEmbedder) Close() error              { return nil }

// fakeMetadataStore is an in-memory store.MetadataStore covering the
// operations the pipeline and coordinator exercise.
type fakeMetadataStore struct {
	mu     sync.Mutex
	files  map[string]*store.File // keyed by file ID
	chunks map[string]*store.Chunk
	state  map[string]string
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		files:  make(map[string]*store.File),
		chunks: make(map[string]*store.Chunk),
		state:  make(map[string]string),
	}
}

func (m *fakeMetadataStore) SaveProject(context.Context, *store.Project) error { return nil }
func (m *fakeMetadataStore) GetProject(context.Context, string) (*store.Project, error) {
	return nil, nil
}
func (m *fakeMetadataStore) UpdateProjectStats(context.Context, string, int, int) error { return nil }
func (m *fakeMetadataStore) RefreshProjectStats(context.Context, string) error          { return nil }

func (m *fakeMetadataStore) SaveFiles(_ context.Context, files []*store.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range files {
		m.files[f.ID] = f
	}
	return nil
}

func (m *fakeMetadataStore) GetFileByPath(_ context.Context, _, path string) (*store.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.Path == path {
			return f, nil
		}
	}
	return nil, nil
}

func (m *fakeMetadataStore) GetChangedFiles(context.Context, string, time.Time) ([]*store.File, error) {
	return nil, nil
}
func (m *fakeMetadataStore) ListFiles(context.Context, string, string, int) ([]*store.File, string, error) {
	return nil, "", nil
}
func (m *fakeMetadataStore) GetFilePathsByProject(context.Context, string) ([]string, error) {
	return nil, nil
}
func (m *fakeMetadataStore) GetFilesForReconciliation(context.Context, string) (map[string]*store.File, error) {
	return nil, nil
}
func (m *fakeMetadataStore) ListFilePathsUnder(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (m *fakeMetadataStore) DeleteFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, fileID)
	return nil
}

func (m *fakeMetadataStore) DeleteFilesByProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.files {
		if f.ProjectID == projectID {
			delete(m.files, id)
		}
	}
	for id := range m.chunks {
		delete(m.chunks, id)
	}
	return nil
}

func (m *fakeMetadataStore) SaveChunks(_ context.Context, chunks []*store.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *fakeMetadataStore) GetChunk(_ context.Context, id string) (*store.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[id], nil
}

func (m *fakeMetadataStore) GetChunks(_ context.Context, ids []string) ([]*store.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *fakeMetadataStore) GetChunksByFile(_ context.Context, fileID string) ([]*store.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Chunk
	for _, c := range m.chunks {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *fakeMetadataStore) DeleteChunks(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.chunks, id)
	}
	return nil
}

func (m *fakeMetadataStore) DeleteChunksByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.FileID == fileID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *fakeMetadataStore) SearchSymbols(context.Context, string, int) ([]*store.Symbol, error) {
	return nil, nil
}

func (m *fakeMetadataStore) GetState(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[key], nil
}

func (m *fakeMetadataStore) SetState(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = value
	return nil
}

func (m *fakeMetadataStore) SaveChunkEmbeddings(context.Context, []string, [][]float32, string) error {
	return nil
}
func (m *fakeMetadataStore) GetAllEmbeddings(context.Context) (map[string][]float32, error) {
	return nil, nil
}
func (m *fakeMetadataStore) GetEmbeddingStats(context.Context) (int, int, error) { return 0, 0, nil }

func (m *fakeMetadataStore) SaveIndexCheckpoint(context.Context, string, int, int, string) error {
	return nil
}
func (m *fakeMetadataStore) LoadIndexCheckpoint(context.Context) (*store.IndexCheckpoint, error) {
	return nil, nil
}
func (m *fakeMetadataStore) ClearIndexCheckpoint(context.Context) error { return nil }

func (m *fakeMetadataStore) Close() error { return nil }
