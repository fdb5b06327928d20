// Package search provides hybrid search functionality combining BM25 and semantic search.
// Results are fused via weighted min-max score normalization.
package search

import (
	"sort"

	"github.com/mcpcontext/browser/internal/store"
)

// DefaultAlpha is the default weight given to the vector branch during fusion.
const DefaultAlpha = 0.7

// FusedResult represents a single result after weighted fusion.
type FusedResult struct {
	ChunkID      string   // Chunk identifier
	Score        float64  // Final fused score: alpha*VectorNorm + (1-alpha)*BM25Norm
	BM25Score    float64  // Original BM25 score (preserved)
	BM25Rank     int      // Position in BM25 list (1-indexed, 0 if absent)
	BM25Norm     float64  // BM25 score min-max normalized over its own candidate set
	VecScore     float64  // Original vector similarity score (preserved)
	VecRank      int      // Position in vector list (1-indexed, 0 if absent)
	VectorNorm   float64  // Vector score min-max normalized over its own candidate set
	InBothLists  bool     // Document appeared in both result lists
	MatchedTerms []string // BM25 matched terms (for highlighting)
}

// WeightedFusion combines BM25 and vector search results by min-max
// normalizing each candidate set independently, then taking a weighted sum.
//
// Algorithm: final = alpha*vector_norm + (1-alpha)*bm25_norm
//
// A candidate present in only one branch is normalized against that branch's
// own candidate set; the missing branch contributes 0 to its term.
type WeightedFusion struct {
	Alpha float64 // weight given to the vector branch (default: 0.7)
}

// NewWeightedFusion creates a fusion instance with the default alpha (0.7).
func NewWeightedFusion() *WeightedFusion {
	return &WeightedFusion{Alpha: DefaultAlpha}
}

// NewWeightedFusionWithAlpha creates a fusion instance with a custom alpha.
// Values outside [0,1] are clamped; alpha closer to 1 favors vector results.
func NewWeightedFusionWithAlpha(alpha float64) *WeightedFusion {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return &WeightedFusion{Alpha: alpha}
}

// Fuse combines BM25 and vector results using weighted min-max normalization.
// A nil alpha uses the fusion instance's configured default.
//
// Results are sorted by: Score (desc) → VectorNorm (desc) → ChunkID (asc)
func (f *WeightedFusion) Fuse(
	bm25 []*store.BM25Result,
	vec []*store.VectorResult,
	alpha *float64,
) []*FusedResult {
	// Return empty slice, not nil, for consistent API behavior.
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	a := f.Alpha
	if alpha != nil {
		a = *alpha
	}

	bm25Norms := minMaxNormalizeBM25(bm25)
	vecNorms := minMaxNormalizeVector(vec)

	capacity := len(bm25) + len(vec)
	scores := make(map[string]*FusedResult, capacity)

	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.BM25Norm = bm25Norms[rank]
		result.MatchedTerms = r.MatchedTerms
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.VectorNorm = vecNorms[rank]

		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
	}

	for _, r := range scores {
		r.Score = a*r.VectorNorm + (1-a)*r.BM25Norm
	}

	return f.toSortedSlice(scores)
}

// getOrCreate returns existing result or creates new one.
func (f *WeightedFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// toSortedSlice converts map to slice and sorts by fused score with tie-breaking.
func (f *WeightedFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare implements deterministic comparison for sorting.
// Returns true if a should rank before b.
//
// Priority:
//  1. Higher fused score
//  2. Higher vector_norm
//  3. Lexicographically smaller ChunkID (deterministic)
func (f *WeightedFusion) compare(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.VectorNorm != b.VectorNorm {
		return a.VectorNorm > b.VectorNorm
	}
	return a.ChunkID < b.ChunkID
}

// minMaxNormalizeBM25 scales BM25 scores to [0,1] over their own candidate set.
// When every candidate has the same score, all normalize to 1.0.
func minMaxNormalizeBM25(results []*store.BM25Result) []float64 {
	norms := make([]float64, len(results))
	if len(results) == 0 {
		return norms
	}

	lo, hi := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}

	span := hi - lo
	for i, r := range results {
		if span == 0 {
			norms[i] = 1
			continue
		}
		norms[i] = (r.Score - lo) / span
	}
	return norms
}

// minMaxNormalizeVector scales vector similarity scores to [0,1] over their
// own candidate set. When every candidate has the same score, all normalize
// to 1.0.
func minMaxNormalizeVector(results []*store.VectorResult) []float64 {
	norms := make([]float64, len(results))
	if len(results) == 0 {
		return norms
	}

	lo, hi := float64(results[0].Score), float64(results[0].Score)
	for _, r := range results {
		s := float64(r.Score)
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	span := hi - lo
	for i, r := range results {
		if span == 0 {
			norms[i] = 1
			continue
		}
		norms[i] = (float64(r.Score) - lo) / span
	}
	return norms
}
