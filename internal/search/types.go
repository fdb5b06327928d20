// Package search provides hybrid search functionality combining BM25 and semantic search.
// Results are fused via weighted min-max score normalization.
package search

import (
	"context"
	"time"

	"github.com/mcpcontext/browser/internal/store"
)

// SearchEngine provides hybrid search combining BM25 and semantic search.
type SearchEngine interface {
	// Search executes a hybrid search query and returns ranked results.
	Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)

	// Index adds chunks to both BM25 and vector indices.
	Index(ctx context.Context, chunks []*store.Chunk) error

	// Delete removes chunks from both indices.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns engine statistics.
	Stats() *EngineStats

	// Close releases all resources.
	Close() error
}

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of results to return (default: 10, max: 100).
	Limit int

	// Filter restricts results by content type: "all", "code", "docs".
	Filter string

	// Language filters results by programming language (e.g., "go", "typescript").
	Language string

	// SymbolType filters results by symbol type (e.g., "function", "class").
	SymbolType string

	// Alpha overrides the default fusion weight for the vector branch.
	// final = alpha*vector_norm + (1-alpha)*bm25_norm
	Alpha *float64

	// Scopes restricts results to files within these path prefixes.
	// Multiple scopes use OR logic (matches if file is within ANY scope).
	// Empty slice means no scope filtering.
	Scopes []string

	// BM25Only forces keyword-only search, skipping semantic/vector search entirely.
	// Useful when the embedder is unavailable or for exact keyword matching.
	BM25Only bool

	// AdjacentChunks specifies how many chunks before/after to retrieve for context.
	// 0 = disabled (default), 1 = fetch 1 before + 1 after, 2 = fetch 2 each.
	AdjacentChunks int

	// Explain enables detailed search explanation mode.
	// When true, returns ExplainData with search decision details.
	Explain bool
}

// SearchResult represents a single search result with scores and metadata.
type SearchResult struct {
	// Chunk contains the full chunk data from MetadataStore.
	Chunk *store.Chunk

	// Score is the fused score (0-1) after the test-file penalty and path
	// boost; the internal/ boost can take it above 1.
	Score float64

	// BM25Score is the individual BM25 score (raw, preserved).
	BM25Score float64

	// VecScore is the individual vector similarity score (raw, preserved).
	VecScore float64

	// BM25Rank is the position in BM25 results (1-indexed, 0 if absent).
	BM25Rank int

	// VecRank is the position in vector results (1-indexed, 0 if absent).
	VecRank int

	// Highlights contains text ranges where query terms matched.
	Highlights []Range

	// InBothLists indicates the result appeared in both BM25 and vector results.
	InBothLists bool

	// MatchedTerms contains the BM25 query terms that matched this result.
	MatchedTerms []string

	// AdjacentContext contains chunks before/after this result for context.
	AdjacentContext AdjacentContext

	// Explain contains detailed search decision information when opts.Explain=true.
	// Only populated on the first result to avoid duplication.
	Explain *ExplainData
}

// AdjacentContext contains surrounding chunks for context continuity.
// This improves "How does X work" queries by providing implementation
// context that may span multiple chunks.
type AdjacentContext struct {
	// Before contains chunks appearing before this one in the same file.
	// Sorted by proximity (closest first).
	Before []*store.Chunk

	// After contains chunks appearing after this one in the same file.
	// Sorted by proximity (closest first).
	After []*store.Chunk
}

// Range represents a text range for highlighting.
type Range struct {
	// Start is the starting character offset (0-indexed).
	Start int

	// End is the ending character offset (exclusive).
	End int
}

// EngineStats provides statistics about the search engine.
type EngineStats struct {
	// BM25Stats contains BM25 index statistics.
	BM25Stats *store.IndexStats

	// VectorCount is the number of vectors in the store.
	VectorCount int
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit is the default number of results (default: 10).
	DefaultLimit int

	// MaxLimit is the maximum allowed results (default: 100).
	MaxLimit int

	// DefaultAlpha is the default fusion weight for the vector branch (default: 0.7).
	DefaultAlpha float64

	// SearchTimeout is the maximum search duration (default: 5s).
	SearchTimeout time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:  10,
		MaxLimit:      100,
		DefaultAlpha:  DefaultAlpha,
		SearchTimeout: 5 * time.Second,
	}
}

// ExplainData contains detailed search decision information.
// Implements the Unix rule of transparency for debugging search behavior.
type ExplainData struct {
	// Query is the original search query.
	Query string

	// BM25ResultCount is the number of results from BM25 search.
	BM25ResultCount int

	// VectorResultCount is the number of results from vector search.
	VectorResultCount int

	// Alpha is the fusion weight used for the vector branch.
	Alpha float64

	// BM25Only indicates if vector search was skipped.
	BM25Only bool

	// DimensionMismatch indicates if vector search was disabled due to dimension mismatch.
	DimensionMismatch bool
}
