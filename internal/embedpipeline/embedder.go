// Package embedpipeline converts chunk content to vectors efficiently and
// resiliently: batching by size and latency, retrying transient provider
// errors with backoff, and bounding in-flight work with backpressure.
package embedpipeline

import "context"

// DefaultBatchSize is the default target batch size for embed_batch calls.
const DefaultBatchSize = 64

// MinBatchSize is the minimum allowed batch size.
const MinBatchSize = 1

// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
const MaxBatchSize = 256

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}
