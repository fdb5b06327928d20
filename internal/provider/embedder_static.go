package provider

import (
	"context"
	"crypto/sha256"
	"math"
)

func init() {
	RegisterEmbedder("static", newStaticEmbedder)
}

const staticDimensions = 256

// staticEmbedder is a deterministic hash-based embedder, grounded on the
// teacher's internal/embed/static.go: used in tests and as the provider
// the health monitor can always probe successfully, since it has no
// external dependency to fail.
type staticEmbedder struct{}

func newStaticEmbedder(_ context.Context, _ map[string]string) (Embedder, error) {
	return staticEmbedder{}, nil
}

func (staticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text), nil
}

func (staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t)
	}
	return out, nil
}

func (staticEmbedder) Dimensions() int                   { return staticDimensions }
func (staticEmbedder) ModelName() string                 { return "static-hash-256" }
func (staticEmbedder) Available(_ context.Context) bool  { return true }
func (staticEmbedder) Close() error                      { return nil }

func hashEmbed(text string) []float32 {
	v := make([]float32, staticDimensions)
	sum := sha256.Sum256([]byte(text))
	for i := 0; i < staticDimensions; i++ {
		v[i] = float32(sum[i%len(sum)]) - 128
	}
	return normalizeVector(v)
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
