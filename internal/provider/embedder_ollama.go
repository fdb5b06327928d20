package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func init() {
	RegisterEmbedder("ollama", newOllamaEmbedder)
}

// ollamaEmbedder calls an Ollama-compatible /api/embeddings endpoint,
// grounded on the teacher's internal/embed/ollama.go, generalized so the
// base URL and model come from the registry's config map instead of
// package-level globals.
type ollamaEmbedder struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

func newOllamaEmbedder(ctx context.Context, cfg map[string]string) (Embedder, error) {
	baseURL := cfg["base_url"]
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg["model"]
	if model == "" {
		return nil, fmt.Errorf("ollama embedder: model is required")
	}
	e := &ollamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	dims, err := e.probeDimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: probing dimensions: %w", err)
	}
	e.dims = dims
	return e, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *ollamaEmbedder) probeDimensions(ctx context.Context) (int, error) {
	v, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(v), nil
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embedder: status %d", resp.StatusCode)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: batch item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *ollamaEmbedder) Dimensions() int  { return e.dims }
func (e *ollamaEmbedder) ModelName() string { return e.model }

func (e *ollamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *ollamaEmbedder) Close() error { return nil }
