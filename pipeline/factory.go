package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/grounding"
	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/ingest"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/types"
)

// Pipeline 组合切块、索引与编排器，提供摄取与查询两个入口。
type Pipeline struct {
	Chunker      *ingest.ChunkingService
	Index        *index.RetrievalIndex
	Embedder     llm.EmbeddingBackend
	Orchestrator *Orchestrator

	logger *zap.Logger
}

// NewFromConfig 按配置装配完整管线：
// 存储后端 → 检索索引 → 嵌入/生成后端 → [重排] → [校验] → 编排器。
// 可选能力在此处固化为布尔标志，编排器只按标志分支。
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrConfig, "config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := metrics.NewCollector("ragflow", logger)

	// 切块服务
	chunkCfg := ingest.ChunkingConfig{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		Separators:   cfg.Chunking.Separators,
	}
	chunker, err := ingest.NewChunkingService(chunkCfg, logger,
		ingest.WithHeuristics(cfg.Chunking.HeuristicsEnabled),
		ingest.WithTokenizer(ingest.NewTokenizer(cfg.Chunking.TokenizerModel, logger)),
	)
	if err != nil {
		return nil, err
	}

	// 存储后端
	backend, err := buildBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	idx, err := index.New(backend, index.Config{
		Dimension:        cfg.Index.Dimension,
		OversampleFactor: cfg.Index.OversampleFactor,
	}, logger)
	if err != nil {
		return nil, err
	}

	// 外部模型后端
	embedder := llm.NewOpenAIEmbedding(llm.EmbeddingConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.LLM.EmbeddingDimensions,
		Timeout:    cfg.LLM.Timeout,
	})
	generator := llm.NewOpenAIGeneration(llm.GenerationConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.ChatModel,
		Timeout: cfg.LLM.Timeout,
	})

	opts := Options{
		RerankPool: cfg.Rerank.PoolSize,
		Metrics:    collector,
	}

	// 可选：重排 + 混合融合
	if cfg.Rerank.Enabled {
		loader, err := rerankModelLoader(cfg.Rerank)
		if err != nil {
			return nil, err
		}
		opts.Reranker = rerank.NewCrossEncoderReranker(loader, rerank.Config{
			MaxCandidates: cfg.Rerank.MaxCandidates,
			BatchSize:     cfg.Rerank.BatchSize,
		}, logger, collector)

		if cfg.Rerank.HybridEnabled {
			hybrid, err := rerank.NewHybridScorer(cfg.Rerank.SemanticWeight, cfg.Rerank.RerankWeight, logger)
			if err != nil {
				return nil, err
			}
			opts.HybridScorer = hybrid
		}
	}

	// 可选：引用校验
	if cfg.Grounding.Enabled {
		opts.Verifier = grounding.NewVerifier(grounding.Config{
			SimilarityThreshold: cfg.Grounding.SimilarityThreshold,
			StrictMode:          cfg.Grounding.StrictMode,
		}, logger)
	}

	orchestrator, err := NewOrchestrator(idx, embedder, generator, opts, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline assembled",
		zap.String("store", cfg.Index.Store),
		zap.Bool("rerank_enabled", orchestrator.RerankEnabled()),
		zap.Bool("verify_enabled", orchestrator.VerifyEnabled()))

	return &Pipeline{
		Chunker:      chunker,
		Index:        idx,
		Embedder:     embedder,
		Orchestrator: orchestrator,
		logger:       logger.With(zap.String("component", "pipeline")),
	}, nil
}

func buildBackend(cfg *config.Config, logger *zap.Logger) (index.StorageBackend, error) {
	switch cfg.Index.Store {
	case "", "memory":
		return index.NewMemoryStore(logger), nil
	case "qdrant":
		return index.NewQdrantStore(index.QdrantConfig{
			Host:                 cfg.Qdrant.Host,
			Port:                 cfg.Qdrant.Port,
			BaseURL:              cfg.Qdrant.BaseURL,
			APIKey:               cfg.Qdrant.APIKey,
			Collection:           cfg.Qdrant.Collection,
			Timeout:              cfg.Qdrant.Timeout,
			AutoCreateCollection: cfg.Qdrant.AutoCreateCollection,
			Distance:             cfg.Qdrant.Distance,
			VectorSize:           cfg.Index.Dimension,
		}, logger), nil
	default:
		return nil, types.NewErrorf(types.ErrConfig, "unknown index store: %q", cfg.Index.Store)
	}
}

func rerankModelLoader(cfg config.RerankConfig) (rerank.ModelLoader, error) {
	switch cfg.Provider {
	case "", "cohere":
		return func() (rerank.RerankModel, error) {
			return rerank.NewCohereModel(rerank.CohereConfig{
				APIKey:  cfg.APIKey,
				BaseURL: cfg.BaseURL,
				Model:   cfg.Model,
			}), nil
		}, nil
	case "jina":
		return func() (rerank.RerankModel, error) {
			return rerank.NewJinaModel(rerank.JinaConfig{
				APIKey:  cfg.APIKey,
				BaseURL: cfg.BaseURL,
				Model:   cfg.Model,
			}), nil
		}, nil
	default:
		return nil, types.NewErrorf(types.ErrConfig, "unknown rerank provider: %q", cfg.Provider)
	}
}

// Ingest 摄取文档：切块 → 嵌入 → 写入索引，返回生成的块 ID。
// 返回时索引立即可查。
func (p *Pipeline) Ingest(ctx context.Context, docs []types.Document) ([]string, error) {
	chunks := p.Chunker.SplitDocuments(docs)
	if len(chunks) == 0 {
		return []string{}, nil
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	embeddings, err := p.Embedder.EmbedDocuments(ctx, contents)
	if err != nil {
		return nil, err
	}

	ids, err := p.Index.Add(ctx, chunks, embeddings)
	if err != nil {
		return nil, err
	}

	p.logger.Info("documents ingested",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)))
	return ids, nil
}

// Query 执行一次查询。
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	return p.Orchestrator.Query(ctx, req)
}
