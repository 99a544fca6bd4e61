package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// EmbeddingConfig configures the OpenAI-compatible embedding backend.
type EmbeddingConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"` // text-embedding-3-large
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIEmbedding implements EmbeddingBackend against an OpenAI-compatible
// /v1/embeddings endpoint.
type OpenAIEmbedding struct {
	cfg    EmbeddingConfig
	client *http.Client
}

// NewOpenAIEmbedding creates a new OpenAI-compatible embedding backend.
func NewOpenAIEmbedding(cfg EmbeddingConfig) *OpenAIEmbedding {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-large"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3072
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIEmbedding{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Dimensions returns the configured embedding dimension.
func (p *OpenAIEmbedding) Dimensions() int { return p.cfg.Dimensions }

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedDocuments generates embeddings for multiple documents, order-preserving.
func (p *OpenAIEmbedding) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return [][]float64{}, nil
	}

	body := openAIEmbedRequest{
		Input:      documents,
		Model:      p.cfg.Model,
		Dimensions: p.cfg.Dimensions,
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/embeddings",
		bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrConnectivity, "embedding request failed").
			WithProvider("openai").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, types.NewErrorf(types.ErrEmbedding,
			"embedding error: status=%d body=%s", resp.StatusCode, string(raw)).
			WithProvider("openai")
	}

	var oaResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.NewError(types.ErrEmbedding, "failed to decode embedding response").
			WithProvider("openai").WithCause(err)
	}
	if len(oaResp.Data) != len(documents) {
		return nil, types.NewErrorf(types.ErrEmbedding,
			"embedding count mismatch: got=%d want=%d", len(oaResp.Data), len(documents)).
			WithProvider("openai")
	}

	// The API may return out of order; restore input order via index.
	out := make([][]float64, len(documents))
	for _, d := range oaResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, types.NewErrorf(types.ErrEmbedding,
				"embedding index out of range: %d", d.Index).WithProvider("openai")
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// EmbedQuery embeds a single query.
func (p *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
