package rerank

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

// JinaConfig configures the Jina AI rerank model adapter.
type JinaConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // jina-reranker-v2-base-multilingual
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// JinaModel implements RerankModel using Jina AI's rerank API.
type JinaModel struct {
	cfg    JinaConfig
	client *http.Client
}

// NewJinaModel creates a new Jina rerank model adapter.
func NewJinaModel(cfg JinaConfig) *JinaModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jina.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "jina-reranker-v2-base-multilingual"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &JinaModel{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type jinaRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type jinaRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Predict scores each pair, grouping by query with one API call per group.
func (m *JinaModel) Predict(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))

	for _, group := range groupByQuery(pairs) {
		groupScores, err := m.rerankOnce(ctx, group.query, group.documents)
		if err != nil {
			return nil, err
		}
		for i, idx := range group.indices {
			scores[idx] = groupScores[i]
		}
	}
	return scores, nil
}

func (m *JinaModel) rerankOnce(ctx context.Context, query string, documents []string) ([]float64, error) {
	body := jinaRerankRequest{
		Query:     query,
		Documents: documents,
		Model:     m.cfg.Model,
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(m.cfg.BaseURL, "/")+"/v1/rerank",
		bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrConnectivity, "jina rerank request failed").
			WithProvider("jina").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, types.NewErrorf(types.ErrBackend,
			"jina rerank error: status=%d body=%s", resp.StatusCode, string(raw)).
			WithProvider("jina")
	}

	var jResp jinaRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&jResp); err != nil {
		return nil, types.NewError(types.ErrBackend, "failed to decode jina response").
			WithProvider("jina").WithCause(err)
	}

	scores := make([]float64, len(documents))
	for _, r := range jResp.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}
