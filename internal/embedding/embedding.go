// Package embedding defines the embedding provider capability and its
// default Ollama-backed implementation, plus an optional Redis cache
// keyed by chunk content hash.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dirc-core/internal/direrrs"
)

// Provider turns chunk text into a fixed-dimensional embedding. Embeddings
// are batched where the backend supports it; EmbedBatch must preserve
// input order.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// OllamaProvider calls a local or remote Ollama server's /api/embeddings
// endpoint, one request per text (Ollama's embeddings API is not
// batched).
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOllamaProvider constructs a provider against baseURL (e.g.
// "http://localhost:11434") using model, whose output dimensionality must
// be declared up front since the vector store schema is fixed-width.
func NewOllamaProvider(baseURL, model string, dimensions int) *OllamaProvider {
	return &OllamaProvider{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests a single embedding from Ollama.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbeddingRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", errors.Join(err, direrrs.ErrEmbedding))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: ollama status %d: %w", resp.StatusCode, direrrs.ErrEmbedding)
	}

	var result ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	return result.Embedding, nil
}

// EmbedBatch embeds each text in order. Ollama has no native batch
// endpoint, so this issues sequential requests; callers needing
// concurrency should fan out at a higher layer (the indexing orchestrator
// processes one document's chunks at a time regardless).
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding: batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the declared output width.
func (p *OllamaProvider) Dimensions() int { return p.dimensions }

// Model returns the Ollama model name in use.
func (p *OllamaProvider) Model() string { return p.model }
