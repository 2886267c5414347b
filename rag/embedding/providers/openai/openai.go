// Package openai provides the OpenAI Embedder provider via OpenAI's
// embeddings HTTP endpoint.
package openai

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
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "text-embedding-3-small"
	defaultDimensions = 1536
)

func init() {
	embedding.Register("openai", func(cfg config.ProviderConfig) (embedding.Embedder, error) {
		return New(cfg)
	})
}

// Embedder is the OpenAI embeddings provider.
type Embedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// New creates a new OpenAI Embedder.
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
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		dimensions: dims,
		client:     http.DefaultClient,
	}, nil
}

func dimensionsForModel(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return defaultDimensions
	}
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed converts a batch of texts into their vector embeddings.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{
		Model:          e.model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("embedding/openai: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding/openai: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding/openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding/openai: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("embedding/openai: %s", apiErr.Error.Message)
		}
		return nil, fmt.Errorf("embedding/openai: unexpected status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embedding/openai: decoding response: %w", err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// EmbedSingle embeds a single text.
func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// Dimensions returns the embedding vector length for the configured model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
