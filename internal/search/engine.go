package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpcontext/browser/internal/embedpipeline"
	"github.com/mcpcontext/browser/internal/store"
	"github.com/mcpcontext/browser/internal/telemetry"
)

// kCandidateMinimum is the floor for the vector-store over-fetch size
// (k_candidate = max(k*4, 50)).
const kCandidateMinimum = 50

// kCandidateMultiplier scales the requested limit into an over-fetch size.
const kCandidateMultiplier = 4

// Engine implements hybrid search combining BM25 and semantic search.
type Engine struct {
	bm25     store.BM25Index
	vector   store.VectorStore
	embedder embedpipeline.Embedder
	metadata store.MetadataStore
	config   EngineConfig
	fusion   *WeightedFusion
	mu       sync.RWMutex

	metrics      *telemetry.Metrics
	collectionID string
}

// WithMetrics records search latency and outcome on m, labeled by
// collectionID, for every call to Search.
func WithMetrics(m *telemetry.Metrics, collectionID string) EngineOption {
	return func(e *Engine) {
		e.metrics = m
		e.collectionID = collectionID
	}
}

// Ensure Engine implements SearchEngine interface.
var _ SearchEngine = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrDimensionMismatch is returned when query embedding dimension doesn't match index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// NewEngine creates a new hybrid search engine with the given dependencies.
// Returns an error if any required dependency is nil.
func NewEngine(
	bm25 store.BM25Index,
	vector store.VectorStore,
	embedder embedpipeline.Embedder,
	metadata store.MetadataStore,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("%w: bm25 index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	e := &Engine{
		bm25:     bm25,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
		config:   config,
		fusion:   NewWeightedFusionWithAlpha(config.DefaultAlpha),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes a hybrid search combining BM25 and semantic search.
//
// It tokenizes the query for the lexical branch, runs BM25 and vector
// search in parallel (over-fetching k_candidate = max(limit*4, 50)
// vector candidates), fuses the two score sets via weighted min-max
// normalization, applies filters, and truncates to the requested limit.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	if e.metrics == nil {
		return e.search(ctx, query, opts)
	}
	start := time.Now()
	results, err := e.search(ctx, query, opts)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.ObserveSearch(e.collectionID, outcome, time.Since(start).Seconds())
	return results, err
}

func (e *Engine) search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	opts = e.applyDefaults(opts)
	kCandidate := candidateLimit(opts.Limit)

	ctx, cancel := context.WithTimeout(ctx, e.searchTimeout())
	defer cancel()

	if opts.BM25Only {
		bm25Results, err := e.bm25.Search(ctx, query, kCandidate)
		if err != nil {
			return nil, fmt.Errorf("BM25 search failed: %w", err)
		}
		return e.finish(ctx, query, opts, bm25Results, nil, false)
	}

	if err := e.validateDimensions(ctx); err != nil {
		slog.Warn("dimension mismatch detected, semantic search disabled",
			slog.String("error", err.Error()))
		bm25Results, bm25Err := e.bm25.Search(ctx, query, kCandidate)
		if bm25Err != nil {
			return nil, fmt.Errorf("BM25 search failed (semantic disabled due to dimension mismatch): %w", bm25Err)
		}
		return e.finish(ctx, query, opts, bm25Results, nil, true)
	}

	bm25Results, vecResults, searchErr := e.parallelSearch(ctx, query, kCandidate)
	if searchErr != nil && bm25Results == nil && vecResults == nil {
		return nil, searchErr
	}

	return e.finish(ctx, query, opts, bm25Results, vecResults, false)
}

// candidateLimit computes k_candidate = max(limit*4, 50).
func candidateLimit(limit int) int {
	c := limit * kCandidateMultiplier
	if c < kCandidateMinimum {
		c = kCandidateMinimum
	}
	return c
}

// finish fuses, enriches, filters and truncates a completed search.
func (e *Engine) finish(
	ctx context.Context,
	query string,
	opts SearchOptions,
	bm25Results []*store.BM25Result,
	vecResults []*store.VectorResult,
	dimMismatch bool,
) ([]*SearchResult, error) {
	fused := e.fusion.Fuse(bm25Results, vecResults, opts.Alpha)

	enriched, err := e.enrichResults(ctx, fused)
	if err != nil {
		return nil, err
	}

	e.enrichResultsWithAdjacent(ctx, enriched, opts.AdjacentChunks, 5)

	enriched = ApplyTestFilePenalty(enriched)
	enriched = ApplyPathBoost(enriched)

	filtered := ApplyFilters(enriched, opts)
	if len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	e.attachExplainData(filtered, query, opts, len(bm25Results), len(vecResults), dimMismatch)

	return filtered, nil
}

// attachExplainData populates ExplainData on the first result when opts.Explain is true.
func (e *Engine) attachExplainData(results []*SearchResult, query string, opts SearchOptions, bm25Count, vecCount int, dimMismatch bool) {
	if !opts.Explain || len(results) == 0 {
		return
	}

	alpha := e.config.DefaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	results[0].Explain = &ExplainData{
		Query:             query,
		BM25ResultCount:   bm25Count,
		VectorResultCount: vecCount,
		Alpha:             alpha,
		BM25Only:          opts.BM25Only,
		DimensionMismatch: dimMismatch,
	}
}

// Index adds chunks to both BM25 and vector indices.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = &store.Document{
			ID:      c.ID,
			Content: c.Content,
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	if err := e.bm25.Index(ctx, docs); err != nil {
		return fmt.Errorf("index in BM25: %w", err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	if err := e.vector.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	if err := e.metadata.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks metadata: %w", err)
	}

	if err := e.storeIndexEmbeddingInfo(ctx); err != nil {
		slog.Warn("failed to store index embedding info", slog.String("error", err.Error()))
	}

	return nil
}

// storeIndexEmbeddingInfo saves the current embedder's dimension and model to metadata.
// This enables detection of dimension mismatch when the embedder changes.
func (e *Engine) storeIndexEmbeddingInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", e.embedder.Dimensions())
	model := e.embedder.ModelName()

	if err := e.metadata.SetState(ctx, store.StateKeyIndexDimension, dim); err != nil {
		return fmt.Errorf("failed to store index dimension: %w", err)
	}
	if err := e.metadata.SetState(ctx, store.StateKeyIndexModel, model); err != nil {
		return fmt.Errorf("failed to store index model: %w", err)
	}
	return nil
}

// validateDimensions checks if current embedder dimension matches indexed dimension.
// Returns ErrDimensionMismatch if the embedder changed since the index was built.
// Returns nil if no index dimension is stored (first-time indexing) or dimensions match.
func (e *Engine) validateDimensions(ctx context.Context) error {
	storedDim, err := e.metadata.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || storedDim == "" {
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(storedDim, "%d", &indexDim); err != nil {
		slog.Warn("invalid stored index dimension", slog.String("value", storedDim))
		return nil
	}

	currentDim := e.embedder.Dimensions()
	if indexDim != currentDim {
		storedModel, _ := e.metadata.GetState(ctx, store.StateKeyIndexModel)
		currentModel := e.embedder.ModelName()
		return fmt.Errorf("%w: index has %d dimensions (%s), but current embedder has %d dimensions (%s); run reindex with --force to rebuild",
			ErrDimensionMismatch, indexDim, storedModel, currentDim, currentModel)
	}

	return nil
}

// Delete removes chunks from all indices and metadata.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Metadata is the source of truth - orphans in BM25/Vector are
	// harmless (filtered during search by chunk enrichment).
	var hasOrphans bool

	if err := e.bm25.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("BM25 delete failed, orphans will remain until compaction",
			slog.String("error", err.Error()), slog.Int("count", len(chunkIDs)))
		hasOrphans = true
	}

	if err := e.vector.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("vector delete failed, orphans will remain until compaction",
			slog.String("error", err.Error()), slog.Int("count", len(chunkIDs)))
		hasOrphans = true
	}

	if err := e.metadata.DeleteChunks(ctx, chunkIDs); err != nil {
		return fmt.Errorf("delete chunks metadata: %w", err)
	}

	if hasOrphans {
		slog.Debug("delete completed with orphan remnants", slog.Int("chunks", len(chunkIDs)))
	}

	return nil
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &EngineStats{
		BM25Stats:   e.bm25.Stats(),
		VectorCount: e.vector.Count(),
	}
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error

	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.metadata.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// applyDefaults fills in default values for search options.
func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	if opts.Filter == "" {
		opts.Filter = "all"
	}
	return opts
}

// parallelSearch executes BM25 and vector searches concurrently.
// Returns partial results on single-search failure (graceful degradation).
func (e *Engine) parallelSearch(ctx context.Context, query string, kCandidate int) (
	bm25Results []*store.BM25Result,
	vecResults []*store.VectorResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Err, vecErr error

	g.Go(func() error {
		var searchErr error
		bm25Results, searchErr = e.bm25.Search(gctx, query, kCandidate)
		if searchErr != nil {
			bm25Err = searchErr
			// Don't return error - allow vector search to continue
		}
		return nil
	})

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil // Don't fail the group
		}

		var searchErr error
		vecResults, searchErr = e.vector.Search(gctx, embedding, kCandidate)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if bm25Err != nil && vecErr != nil {
		return nil, nil, errors.Join(bm25Err, vecErr)
	}

	if bm25Err != nil {
		err = bm25Err
	} else if vecErr != nil {
		err = vecErr
	}

	return bm25Results, vecResults, err
}

// enrichResults fetches full chunk data using batch retrieval for performance.
func (e *Engine) enrichResults(ctx context.Context, fused []*FusedResult) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	fusedByID := make(map[string]*FusedResult, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
		fusedByID[f.ChunkID] = f
	}

	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		f, ok := fusedByID[chunk.ID]
		if !ok {
			continue // Should not happen, but defensive
		}

		result := &SearchResult{
			Chunk:        chunk,
			Score:        f.Score,
			BM25Score:    f.BM25Score,
			VecScore:     f.VecScore,
			BM25Rank:     f.BM25Rank,
			VecRank:      f.VecRank,
			InBothLists:  f.InBothLists,
			Highlights:   e.calculateHighlights(chunk.Content, f.MatchedTerms),
			MatchedTerms: f.MatchedTerms,
		}

		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return fusedByID[results[i].Chunk.ID].Score > fusedByID[results[j].Chunk.ID].Score
	})

	return results, nil
}

// enrichResultsWithAdjacent fetches adjacent chunks for context continuity.
// For each top-N result, retrieves chunks before/after from the same file.
func (e *Engine) enrichResultsWithAdjacent(ctx context.Context, results []*SearchResult, adjacentCount int, topN int) {
	if adjacentCount <= 0 || len(results) == 0 {
		return
	}

	enrichCount := len(results)
	if topN > 0 && enrichCount > topN {
		enrichCount = topN
	}

	fileIDToResults := make(map[string][]*SearchResult)
	for i := 0; i < enrichCount; i++ {
		result := results[i]
		if result.Chunk == nil || result.Chunk.FileID == "" {
			continue
		}
		fileIDToResults[result.Chunk.FileID] = append(fileIDToResults[result.Chunk.FileID], result)
	}

	for fileID, fileResults := range fileIDToResults {
		allChunks, err := e.metadata.GetChunksByFile(ctx, fileID)
		if err != nil {
			slog.Debug("failed to fetch chunks for adjacent context",
				slog.String("file_id", fileID), slog.String("error", err.Error()))
			continue
		}

		for _, result := range fileResults {
			targetChunk := result.Chunk

			var before, after []*store.Chunk
			for _, c := range allChunks {
				if c.ID == targetChunk.ID {
					continue
				}
				if c.EndLine < targetChunk.StartLine {
					before = append(before, c)
				}
				if c.StartLine > targetChunk.EndLine {
					after = append(after, c)
				}
			}

			sort.Slice(before, func(i, j int) bool {
				return before[i].EndLine > before[j].EndLine
			})
			if len(before) > adjacentCount {
				before = before[:adjacentCount]
			}

			sort.Slice(after, func(i, j int) bool {
				return after[i].StartLine < after[j].StartLine
			})
			if len(after) > adjacentCount {
				after = after[:adjacentCount]
			}

			result.AdjacentContext.Before = before
			result.AdjacentContext.After = after
		}
	}
}

// calculateHighlights finds text ranges for matched terms.
func (e *Engine) calculateHighlights(content string, matchedTerms []string) []Range {
	if len(matchedTerms) == 0 || len(content) == 0 {
		return []Range{}
	}

	const maxMatchesPerTerm = 10
	highlights := make([]Range, 0, len(matchedTerms)*3)

	lowerContent := strings.ToLower(content)

	for _, term := range matchedTerms {
		if len(term) == 0 {
			continue
		}

		lowerTerm := strings.ToLower(term)
		start := 0
		matchCount := 0

		for matchCount < maxMatchesPerTerm {
			idx := strings.Index(lowerContent[start:], lowerTerm)
			if idx == -1 {
				break
			}

			absStart := start + idx
			highlights = append(highlights, Range{
				Start: absStart,
				End:   absStart + len(term),
			})

			start = absStart + len(term)
			matchCount++
		}
	}

	if len(highlights) > 1 {
		sort.Slice(highlights, func(i, j int) bool {
			return highlights[i].Start < highlights[j].Start
		})
	}

	return highlights
}

// searchTimeout returns the configured search timeout, or a safe default.
func (e *Engine) searchTimeout() time.Duration {
	if e.config.SearchTimeout <= 0 {
		return DefaultConfig().SearchTimeout
	}
	return e.config.SearchTimeout
}
