// 软件包 pipeline 将检索、重排、提示组装、生成与接地校验串成一次查询。
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/grounding"
	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/types"
)

// QueryRequest 单次查询的全部输入。
type QueryRequest struct {
	Question        string         `json:"question"`
	TopK            int            `json:"top_k"`
	Filters         map[string]any `json:"filters,omitempty"`
	MinScore        *float64       `json:"min_score,omitempty"`
	MaxAgeDays      int            `json:"max_age_days,omitempty"`
	UserPermissions []string       `json:"user_permissions,omitempty"`
	Temperature     float64        `json:"temperature"`
	MaxTokens       int            `json:"max_tokens,omitempty"`
	IncludeSources  bool           `json:"include_sources"`
	PromptType      PromptType     `json:"prompt_type,omitempty"`
}

// Source 响应中的单条来源，保持最终排名顺序。
type Source struct {
	DocumentID string  `json:"document_id"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
}

// Metadata 响应元数据。
type Metadata struct {
	TopK           int    `json:"top_k"`
	RetrievedDocs  int    `json:"retrieved_docs"`
	RerankApplied  bool   `json:"rerank_applied"`
	PromptType     string `json:"prompt_type"`
	PromptFallback bool   `json:"prompt_fallback"`
}

// QueryResponse 单次查询的结果。
type QueryResponse struct {
	Answer        string            `json:"answer"`
	Sources       []Source          `json:"sources,omitempty"`
	Metadata      Metadata          `json:"metadata"`
	CitationCheck *grounding.Report `json:"citation_check,omitempty"`
}

// Options 编排器的可选能力与参数。
type Options struct {
	// Reranker 非 nil 时启用重排。
	Reranker *rerank.CrossEncoderReranker
	// HybridScorer 非 nil 且重排启用时，在重排后按混合分数重新排序。
	HybridScorer *rerank.HybridScorer
	// Verifier 非 nil 时启用引用校验。
	Verifier *grounding.Verifier
	// RerankPool 重排前的检索窗口，小于 topK 时取 topK。
	RerankPool int
	// Metrics 可选指标收集器。
	Metrics *metrics.Collector
}

// Orchestrator 检索-生成编排器。
//
// 可选能力在构造期固化为显式布尔分支：重排、混合融合与引用校验
// 都只在注入对应能力时参与查询，缺失时静默跳过而非运行期探测。
type Orchestrator struct {
	index     *index.RetrievalIndex
	embedder  llm.EmbeddingBackend
	generator llm.GenerationBackend
	prompts   *PromptBuilder

	reranker   *rerank.CrossEncoderReranker
	hybrid     *rerank.HybridScorer
	verifier   *grounding.Verifier
	rerankPool int

	rerankEnabled bool
	verifyEnabled bool

	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewOrchestrator 创建编排器。index、embedder、generator 为必需能力。
func NewOrchestrator(idx *index.RetrievalIndex, embedder llm.EmbeddingBackend, generator llm.GenerationBackend, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if idx == nil {
		return nil, types.NewError(types.ErrConfig, "retrieval index is required")
	}
	if embedder == nil {
		return nil, types.NewError(types.ErrConfig, "embedding backend is required")
	}
	if generator == nil {
		return nil, types.NewError(types.ErrConfig, "generation backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		index:         idx,
		embedder:      embedder,
		generator:     generator,
		prompts:       NewPromptBuilder(),
		reranker:      opts.Reranker,
		hybrid:        opts.HybridScorer,
		verifier:      opts.Verifier,
		rerankPool:    opts.RerankPool,
		rerankEnabled: opts.Reranker != nil,
		verifyEnabled: opts.Verifier != nil,
		metrics:       opts.Metrics,
		logger:        logger.With(zap.String("component", "rag_orchestrator")),
	}, nil
}

// RerankEnabled 报告重排能力是否可用。
func (o *Orchestrator) RerankEnabled() bool { return o.rerankEnabled }

// VerifyEnabled 报告引用校验能力是否可用。
func (o *Orchestrator) VerifyEnabled() bool { return o.verifyEnabled }

// Query 执行一次完整查询：检索 → [重排] → 提示组装 → 生成 → [校验]。
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	resp, err := o.query(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordQuery(status, time.Since(start))
	return resp, err
}

func (o *Orchestrator) query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, types.NewError(types.ErrConfig, "question must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		return nil, types.NewErrorf(types.ErrConfig, "topK must be positive, got %d", topK)
	}

	queryVector, err := o.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		return nil, err
	}

	// 重排启用时扩大检索窗口，重排后再收敛到 topK。
	window := topK
	if o.rerankEnabled && o.rerankPool > window {
		window = o.rerankPool
	}

	candidates, err := o.index.Search(ctx, queryVector, window, index.SearchOptions{
		Filters:         req.Filters,
		MinScore:        req.MinScore,
		MaxAgeDays:      req.MaxAgeDays,
		UserPermissions: req.UserPermissions,
	})
	if err != nil {
		return nil, err
	}

	rerankApplied := false
	if o.rerankEnabled && len(candidates) > 0 {
		candidates = o.reranker.Rerank(ctx, req.Question, candidates, topK)
		if o.hybrid != nil {
			candidates = o.hybrid.RerankWithHybrid(candidates)
		}
		rerankApplied = true
	} else if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	contextBlock := formatContext(candidates)
	prompt, activeType, fallback := o.buildPrompt(req.PromptType, req.Question, contextBlock, candidates)

	answer, err := o.generator.Generate(ctx, prompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{
		Answer: answer,
		Metadata: Metadata{
			TopK:           topK,
			RetrievedDocs:  len(candidates),
			RerankApplied:  rerankApplied,
			PromptType:     string(activeType),
			PromptFallback: fallback,
		},
	}

	if o.verifyEnabled && len(candidates) > 0 {
		resp.CitationCheck = o.runVerifier(answer, candidates)
	}

	if req.IncludeSources {
		resp.Sources = buildSources(candidates, rerankApplied)
	}

	o.logger.Info("query completed",
		zap.Int("top_k", topK),
		zap.Int("retrieved", len(candidates)),
		zap.Bool("rerank_applied", rerankApplied),
		zap.String("prompt_type", string(activeType)))

	return resp, nil
}

// buildPrompt 按请求策略组装提示；策略缺失或构建失败时静默回退到
// 保底模板，回退记入元数据与指标。
func (o *Orchestrator) buildPrompt(requested PromptType, question, contextBlock string, candidates []index.Candidate) (prompt string, active PromptType, fallback bool) {
	active = requested
	if active == "" {
		active = PromptStrict
	}

	template, err := o.prompts.Get(active)
	if err == nil {
		prompt, err = template.Build(question, contextBlock, candidates)
		if err == nil {
			return prompt, active, false
		}
	}

	o.logger.Warn("prompt strategy failed, using plain template",
		zap.String("requested", string(requested)),
		zap.Error(err))
	o.metrics.RecordPromptFallback()

	return buildPlainPrompt(question, contextBlock), "plain", true
}

// runVerifier 执行引用校验。校验器的任何内部失败都被吸收：
// 省略 citationCheck、记录日志与指标，绝不影响查询结果。
func (o *Orchestrator) runVerifier(answer string, candidates []index.Candidate) (report *grounding.Report) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("grounding verifier panicked, omitting citation check",
				zap.Any("panic", r))
			o.metrics.RecordVerifierFailure()
			report = nil
		}
	}()

	report = o.verifier.Verify(answer, candidates, true)
	o.metrics.RecordGroundingConfidence(report.Confidence)
	return report
}

// formatContext 生成 1 起始编号的上下文块，编号与 sources 数组的
// 0 起始下标对齐（提示内 [i] ↔ sources[i-1]）。
func formatContext(candidates []index.Candidate) string {
	if len(candidates) == 0 {
		return "(No relevant context found)"
	}

	parts := make([]string, 0, len(candidates))
	for i, c := range candidates {
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[%d] Source: %s\n%s\n", i+1, source, c.Content))
	}
	return strings.Join(parts, "\n")
}

func buildSources(candidates []index.Candidate, rerankApplied bool) []Source {
	sources := make([]Source, len(candidates))
	for i, c := range candidates {
		score := c.Score
		if rerankApplied {
			score = c.RerankScore
		}
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		sources[i] = Source{
			DocumentID: c.ID,
			Snippet:    index.MakeSnippet(c.Content),
			Score:      score,
			Source:     source,
		}
	}
	return sources
}
