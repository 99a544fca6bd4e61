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

// CohereConfig configures the Cohere rerank model adapter.
type CohereConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // rerank-v3.5
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// CohereModel 通过 Cohere API 实现 RerankModel。
type CohereModel struct {
	cfg    CohereConfig
	client *http.Client
}

// NewCohereModel 创建 Cohere 重排模型适配器。
func NewCohereModel(cfg CohereConfig) *CohereModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "rerank-v3.5"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &CohereModel{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Predict 计算每对的相关性分数。同一批内允许不同查询：
// 按查询分组，每组一次 API 调用，结果按原始下标回填。
func (m *CohereModel) Predict(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
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

func (m *CohereModel) rerankOnce(ctx context.Context, query string, documents []string) ([]float64, error) {
	body := cohereRerankRequest{
		Query:     query,
		Documents: documents,
		Model:     m.cfg.Model,
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(m.cfg.BaseURL, "/")+"/v2/rerank",
		bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrConnectivity, "cohere rerank request failed").
			WithProvider("cohere").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, types.NewErrorf(types.ErrBackend,
			"cohere rerank error: status=%d body=%s", resp.StatusCode, string(raw)).
			WithProvider("cohere")
	}

	var cResp cohereRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, types.NewError(types.ErrBackend, "failed to decode cohere response").
			WithProvider("cohere").WithCause(err)
	}

	// Cohere 按相关性排序返回，这里按原始下标还原。
	scores := make([]float64, len(documents))
	for _, r := range cResp.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}

// queryGroup 同一查询下的文档组，indices 记录原始下标。
type queryGroup struct {
	query     string
	documents []string
	indices   []int
}

func groupByQuery(pairs []QueryDocPair) []queryGroup {
	order := make([]string, 0)
	byQuery := make(map[string]*queryGroup)

	for i, pair := range pairs {
		g, ok := byQuery[pair.Query]
		if !ok {
			g = &queryGroup{query: pair.Query}
			byQuery[pair.Query] = g
			order = append(order, pair.Query)
		}
		g.documents = append(g.documents, pair.Document)
		g.indices = append(g.indices, i)
	}

	groups := make([]queryGroup, 0, len(order))
	for _, q := range order {
		groups = append(groups, *byQuery[q])
	}
	return groups
}
