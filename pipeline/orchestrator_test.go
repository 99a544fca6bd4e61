package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/grounding"
	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/types"
)

// fakeEmbedder 返回固定查询向量。
type fakeEmbedder struct {
	queryVec []float64
	err      error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(docs))
	for i := range docs {
		out[i] = f.queryVec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queryVec, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.queryVec) }

// fakeGenerator 记录收到的提示并返回固定回答。
type fakeGenerator struct {
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) StreamGenerate(ctx context.Context, prompt string, temperature float64, maxTokens int) (<-chan string, error) {
	answer, err := f.Generate(ctx, prompt, temperature, maxTokens)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	ch <- answer
	close(ch)
	return ch, nil
}

// stubRerankModel 按文档内容查表给分。
type stubRerankModel struct {
	scores map[string]float64
	err    error
}

func (m *stubRerankModel) Predict(ctx context.Context, pairs []rerank.QueryDocPair) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = m.scores[p.Document]
	}
	return out, nil
}

// seedIndex 构建内存索引并写入三个按相似度降序排列的块。
func seedIndex(t *testing.T) *index.RetrievalIndex {
	t.Helper()
	store := index.NewMemoryStore(zap.NewNop())
	idx, err := index.New(store, index.Config{Dimension: 2}, zap.NewNop())
	require.NoError(t, err)

	docs := []types.Document{
		{Content: "the warranty period is two years", Source: "policy.md"},
		{Content: "billing happens at the start of each month", Source: "billing.md"},
		{Content: "support responds within one business day", Source: "support.md"},
	}
	embeddings := [][]float64{
		{1, 0},
		{0.8, 0.2},
		{0.5, 0.5},
	}
	_, err = idx.Add(context.Background(), docs, embeddings)
	require.NoError(t, err)
	return idx
}

func newTestOrchestrator(t *testing.T, opts Options) (*Orchestrator, *fakeGenerator) {
	t.Helper()
	gen := &fakeGenerator{answer: "The warranty period is two years."}
	o, err := NewOrchestrator(seedIndex(t), &fakeEmbedder{queryVec: []float64{1, 0}}, gen, opts, zap.NewNop())
	require.NoError(t, err)
	return o, gen
}

func TestNewOrchestratorValidation(t *testing.T) {
	idx := seedIndex(t)
	emb := &fakeEmbedder{queryVec: []float64{1, 0}}
	gen := &fakeGenerator{}

	_, err := NewOrchestrator(nil, emb, gen, Options{}, nil)
	assert.True(t, types.IsCode(err, types.ErrConfig))

	_, err = NewOrchestrator(idx, nil, gen, Options{}, nil)
	assert.True(t, types.IsCode(err, types.ErrConfig))

	_, err = NewOrchestrator(idx, emb, nil, Options{}, nil)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestQueryValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{})
	ctx := context.Background()

	_, err := o.Query(ctx, QueryRequest{Question: "  ", TopK: 2})
	assert.True(t, types.IsCode(err, types.ErrConfig))

	_, err = o.Query(ctx, QueryRequest{Question: "q", TopK: 0})
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestQueryWithoutRerank(t *testing.T) {
	o, gen := newTestOrchestrator(t, Options{})

	resp, err := o.Query(context.Background(), QueryRequest{
		Question:       "what is the warranty period",
		TopK:           2,
		IncludeSources: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "The warranty period is two years.", resp.Answer)
	assert.Equal(t, 2, resp.Metadata.TopK)
	assert.Equal(t, 2, resp.Metadata.RetrievedDocs)
	assert.False(t, resp.Metadata.RerankApplied)
	assert.Equal(t, "strict", resp.Metadata.PromptType)
	assert.False(t, resp.Metadata.PromptFallback)

	// 重排关闭：top-2 按原始相似度降序，score 即相似度。
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "policy.md", resp.Sources[0].Source)
	assert.Equal(t, "billing.md", resp.Sources[1].Source)
	assert.Greater(t, resp.Sources[0].Score, resp.Sources[1].Score)
	assert.InDelta(t, 1.0, resp.Sources[0].Score, 1e-9)

	// 上下文块 1 起始编号与 sources 下标对齐。
	assert.Contains(t, gen.lastPrompt, "[1] Source: policy.md\nthe warranty period is two years\n")
	assert.Contains(t, gen.lastPrompt, "[2] Source: billing.md\n")
	assert.NotContains(t, gen.lastPrompt, "[3]")
}

func TestQueryWithRerank(t *testing.T) {
	model := &stubRerankModel{scores: map[string]float64{
		"the warranty period is two years":           0.1,
		"billing happens at the start of each month": 0.9,
		"support responds within one business day":   0.5,
	}}
	reranker := rerank.NewWithModel(model, rerank.DefaultConfig(), nil, nil)

	o, _ := newTestOrchestrator(t, Options{Reranker: reranker, RerankPool: 3})

	resp, err := o.Query(context.Background(), QueryRequest{
		Question:       "billing question",
		TopK:           2,
		IncludeSources: true,
	})
	require.NoError(t, err)

	assert.True(t, resp.Metadata.RerankApplied)
	require.Len(t, resp.Sources, 2)
	// 重排后顺序由模型分数决定，score 取 rerank_score。
	assert.Equal(t, "billing.md", resp.Sources[0].Source)
	assert.Equal(t, "support.md", resp.Sources[1].Source)
	assert.InDelta(t, 0.9, resp.Sources[0].Score, 1e-9)
	assert.InDelta(t, 0.5, resp.Sources[1].Score, 1e-9)
}

func TestQueryRerankModelFailureDegrades(t *testing.T) {
	model := &stubRerankModel{err: errors.New("scorer down")}
	reranker := rerank.NewWithModel(model, rerank.DefaultConfig(), nil, nil)

	o, _ := newTestOrchestrator(t, Options{Reranker: reranker, RerankPool: 3})

	resp, err := o.Query(context.Background(), QueryRequest{
		Question:       "any question",
		TopK:           2,
		IncludeSources: true,
	})
	require.NoError(t, err)

	// 恒等回退：原始顺序，rerank_score == score。
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "policy.md", resp.Sources[0].Source)
	assert.InDelta(t, 1.0, resp.Sources[0].Score, 1e-9)
}

func TestQueryPromptFallback(t *testing.T) {
	o, gen := newTestOrchestrator(t, Options{})

	resp, err := o.Query(context.Background(), QueryRequest{
		Question:   "q about warranty terms",
		TopK:       2,
		PromptType: "no-such-strategy",
	})
	require.NoError(t, err)

	assert.True(t, resp.Metadata.PromptFallback)
	assert.Equal(t, "plain", resp.Metadata.PromptType)
	assert.Contains(t, gen.lastPrompt, "Use the following context snippets")
}

func TestQueryEmptyRetrievalUsesPlaceholder(t *testing.T) {
	store := index.NewMemoryStore(zap.NewNop())
	idx, err := index.New(store, index.Config{Dimension: 2}, zap.NewNop())
	require.NoError(t, err)

	gen := &fakeGenerator{answer: "I don't have enough information to answer this"}
	o, err := NewOrchestrator(idx, &fakeEmbedder{queryVec: []float64{1, 0}}, gen, Options{}, zap.NewNop())
	require.NoError(t, err)

	resp, err := o.Query(context.Background(), QueryRequest{
		Question:       "anything",
		TopK:           3,
		IncludeSources: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Metadata.RetrievedDocs)
	assert.Empty(t, resp.Sources)
	assert.Nil(t, resp.CitationCheck)
	assert.Contains(t, gen.lastPrompt, "(No relevant context found)")
}

func TestQueryAttachesCitationCheck(t *testing.T) {
	verifier := grounding.NewVerifier(grounding.Config{}, nil)
	o, _ := newTestOrchestrator(t, Options{Verifier: verifier})

	resp, err := o.Query(context.Background(), QueryRequest{
		Question: "what is the warranty period",
		TopK:     2,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.CitationCheck)
	assert.True(t, resp.CitationCheck.IsGrounded)
	assert.Equal(t, 1.0, resp.CitationCheck.Confidence)
}

func TestQueryVerifierFailureDoesNotFailQuery(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{})
	// 强制校验路径进入并触发内部 panic（nil 校验器解引用）。
	o.verifyEnabled = true
	o.verifier = nil

	resp, err := o.Query(context.Background(), QueryRequest{
		Question: "what is the warranty period",
		TopK:     2,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.CitationCheck)
	assert.NotEmpty(t, resp.Answer)
}

func TestQueryGenerationErrorPropagates(t *testing.T) {
	o, gen := newTestOrchestrator(t, Options{})
	gen.err = types.NewError(types.ErrGeneration, "backend down")

	_, err := o.Query(context.Background(), QueryRequest{Question: "q about warranty", TopK: 2})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrGeneration))
}

func TestQueryEmbeddingErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{answer: "x"}
	o, err := NewOrchestrator(seedIndex(t),
		&fakeEmbedder{queryVec: []float64{1, 0}, err: types.NewError(types.ErrEmbedding, "embed down")},
		gen, Options{}, zap.NewNop())
	require.NoError(t, err)

	_, err = o.Query(context.Background(), QueryRequest{Question: "q about warranty", TopK: 2})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrEmbedding))
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "(No relevant context found)", formatContext(nil))

	got := formatContext([]index.Candidate{
		{Content: "first chunk", Source: "a.md"},
		{Content: "second chunk"},
	})
	assert.True(t, strings.HasPrefix(got, "[1] Source: a.md\nfirst chunk\n"))
	assert.Contains(t, got, "[2] Source: unknown\nsecond chunk\n")
}

func TestBuildSourcesSnippetTruncation(t *testing.T) {
	long := strings.Repeat("0123456789", 30)
	sources := buildSources([]index.Candidate{
		{ID: "c1", Content: long, Score: 0.4},
	}, false)

	require.Len(t, sources, 1)
	assert.True(t, strings.HasSuffix(sources[0].Snippet, "..."))
	assert.Len(t, []rune(sources[0].Snippet), 203)
	assert.Equal(t, 0.4, sources[0].Score)
}
