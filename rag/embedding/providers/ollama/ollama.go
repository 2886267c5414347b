// Package ollama provides the Ollama Embedder provider via Ollama's local
// /api/embed HTTP endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/rag/embedding"
)

const (
	defaultBaseURL    = "http://localhost:11434"
	defaultModel      = "nomic-embed-text"
	defaultDimensions = 768
)

func init() {
	embedding.Register("ollama", func(cfg config.ProviderConfig) (embedding.Embedder, error) {
		return New(cfg)
	})
}

// Embedder is the Ollama embeddings provider.
type Embedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// New creates a new Ollama Embedder.
func New(cfg config.ProviderConfig) (*Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	dims := dimensionsForModel(model)
	if v, ok := config.GetOption[float64](cfg, "dimensions"); ok && v > 0 {
		dims = int(v)
	}

	return &Embedder{
		baseURL:    baseURL,
		model:      model,
		dimensions: dims,
		client:     http.DefaultClient,
	}, nil
}

func dimensionsForModel(model string) int {
	switch model {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return defaultDimensions
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed converts a batch of texts into their vector embeddings, issuing one
// request per text since Ollama's /api/embed has no stable per-item index
// guarantee for mixed batches.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// EmbedSingle embeds a single text.
func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return e.embedOne(ctx, text)
}

// Dimensions returns the embedding vector length for the configured model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedding/ollama: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding/ollama: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding/ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding/ollama: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding/ollama: unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embedding/ollama: decoding response: %w", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding/ollama: empty response")
	}
	return parsed.Embeddings[0], nil
}
