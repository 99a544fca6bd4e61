package rerank

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/types"
)

// ====== Cross-Encoder 重排序器 ======

// Config Cross-Encoder 配置
type Config struct {
	// MaxCandidates 限制参与重排的候选数量（Cross-Encoder 计算成本高）
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates"`
	// MaxLength 最大输入长度（按字符截断为 MaxLength*4）
	MaxLength int `json:"max_length" yaml:"max_length"`
	// BatchSize 批处理大小
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxCandidates: 200,
		MaxLength:     512,
		BatchSize:     32,
	}
}

// CrossEncoderReranker Cross-Encoder 重排序器。
//
// 模型延迟初始化：首次调用 Rerank 时通过 loader 构造一次。
// 评分失败不向调用方抛错，退化为恒等回退（rerank_score := score，
// 保持原始顺序）并发出告警信号。
type CrossEncoderReranker struct {
	loader  ModelLoader
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector

	initOnce sync.Once
	model    RerankModel
	initErr  error
}

// NewCrossEncoderReranker 创建重排序器。model 通过 loader 延迟构造。
func NewCrossEncoderReranker(loader ModelLoader, cfg Config, logger *zap.Logger, collector *metrics.Collector) *CrossEncoderReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 200
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	return &CrossEncoderReranker{
		loader:  loader,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "cross_encoder_reranker")),
		metrics: collector,
	}
}

// NewWithModel 使用已构造的模型创建重排序器（测试和进程内模型）。
func NewWithModel(model RerankModel, cfg Config, logger *zap.Logger, collector *metrics.Collector) *CrossEncoderReranker {
	r := NewCrossEncoderReranker(nil, cfg, logger, collector)
	r.initOnce.Do(func() { r.model = model })
	return r
}

func (r *CrossEncoderReranker) ensureModel() (RerankModel, error) {
	r.initOnce.Do(func() {
		if r.loader == nil {
			return
		}
		r.model, r.initErr = r.loader()
		if r.initErr != nil {
			r.logger.Warn("rerank model initialization failed", zap.Error(r.initErr))
		}
	})
	if r.initErr != nil {
		return nil, r.initErr
	}
	return r.model, nil
}

// Rerank 重排候选并填充 rerank_score，按分数降序、同分保持原始
// 顺序，topK > 0 时截断到 topK。
//
// 评分路径的任何失败（模型加载、预测出错、输出长度不符）都退化为
// 恒等回退，绝不向上抛错。
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []index.Candidate, topK int) []index.Candidate {
	if len(candidates) == 0 {
		return []index.Candidate{}
	}

	pool := candidates
	if len(pool) > r.cfg.MaxCandidates {
		r.logger.Info("limiting candidates for reranking",
			zap.Int("original", len(pool)),
			zap.Int("limited", r.cfg.MaxCandidates))
		pool = pool[:r.cfg.MaxCandidates]
	}

	out := make([]index.Candidate, len(pool))
	copy(out, pool)

	scores, err := r.score(ctx, query, out)
	if err != nil {
		// 恒等回退：rerank_score := score，保持原始顺序。
		r.logger.Warn("rerank scoring failed, falling back to original order",
			zap.Int("candidates", len(out)),
			zap.Error(err))
		r.metrics.RecordRerankFallback()
		for i := range out {
			out[i].RerankScore = out[i].Score
		}
		return truncate(out, topK)
	}

	for i := range out {
		out[i].RerankScore = scores[i]
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})

	return truncate(out, topK)
}

func (r *CrossEncoderReranker) score(ctx context.Context, query string, candidates []index.Candidate) ([]float64, error) {
	model, err := r.ensureModel()
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errNoModel
	}

	pairs := make([]QueryDocPair, len(candidates))
	maxChars := r.cfg.MaxLength * 4
	for i, c := range candidates {
		content := c.Content
		if runes := []rune(content); len(runes) > maxChars {
			content = string(runes[:maxChars])
		}
		pairs[i] = QueryDocPair{Query: query, Document: content}
	}

	scores := make([]float64, len(pairs))
	for start := 0; start < len(pairs); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batchScores, err := model.Predict(ctx, pairs[start:end])
		if err != nil {
			return nil, err
		}
		if len(batchScores) != end-start {
			return nil, errScoreCount
		}
		copy(scores[start:end], batchScores)
	}
	return scores, nil
}

// BatchRerank 对每个 (query, candidates) 对独立应用 Rerank，
// 各调用间无共享状态。单次 Rerank 自身降级而非报错，因此
// 批处理整体也不会失败。
func (r *CrossEncoderReranker) BatchRerank(ctx context.Context, queries []string, candidateLists [][]index.Candidate, topK int) [][]index.Candidate {
	results := make([][]index.Candidate, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i := range queries {
		i := i
		g.Go(func() error {
			results[i] = r.Rerank(gctx, queries[i], candidateLists[i], topK)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func truncate(candidates []index.Candidate, topK int) []index.Candidate {
	if topK > 0 && topK < len(candidates) {
		return candidates[:topK]
	}
	return candidates
}

var (
	errNoModel    = types.NewError(types.ErrConfig, "no rerank model available")
	errScoreCount = types.NewError(types.ErrBackend, "rerank model returned wrong number of scores")
)
