package rerank

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/types"
)

// weightTolerance 权重和允许偏离 1.0 的容差，超出即按比例归一。
const weightTolerance = 0.01

// HybridScorer 混合分数融合器：
//
//	hybrid = wSem·normalize(score) + wRerank·normalize(rerank_score)
//
// normalize 将余弦范围 [-1,1] 映射到 [0,1]，其余值钳位到 [0,1]。
type HybridScorer struct {
	semanticWeight float64
	rerankWeight   float64
	logger         *zap.Logger
}

// NewHybridScorer 创建混合融合器。
//
// 每个权重必须落在 [0,1]，否则返回 CONFIG_ERROR。权重和偏离 1.0
// 超过容差 0.01 时按比例归一并告警，不报错。
func NewHybridScorer(semanticWeight, rerankWeight float64, logger *zap.Logger) (*HybridScorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "hybrid_scorer"))

	if semanticWeight < 0 || semanticWeight > 1 {
		return nil, types.NewErrorf(types.ErrConfig,
			"semantic weight must be in [0,1], got %v", semanticWeight)
	}
	if rerankWeight < 0 || rerankWeight > 1 {
		return nil, types.NewErrorf(types.ErrConfig,
			"rerank weight must be in [0,1], got %v", rerankWeight)
	}

	sum := semanticWeight + rerankWeight
	if math.Abs(sum-1.0) > weightTolerance {
		if sum == 0 {
			return nil, types.NewError(types.ErrConfig, "hybrid weights must not both be zero")
		}
		logger.Warn("hybrid weights do not sum to 1, renormalizing",
			zap.Float64("semantic_weight", semanticWeight),
			zap.Float64("rerank_weight", rerankWeight),
			zap.Float64("sum", sum))
		semanticWeight /= sum
		rerankWeight /= sum
	}

	return &HybridScorer{
		semanticWeight: semanticWeight,
		rerankWeight:   rerankWeight,
		logger:         logger,
	}, nil
}

// Weights 返回生效的（归一后）权重。
func (h *HybridScorer) Weights() (semantic, rerank float64) {
	return h.semanticWeight, h.rerankWeight
}

// Hybrid 计算单个候选的混合分数。
func (h *HybridScorer) Hybrid(c index.Candidate) float64 {
	return h.semanticWeight*normalizeScore(c.Score) +
		h.rerankWeight*normalizeScore(c.RerankScore)
}

// RerankWithHybrid 重算每个候选的混合分数并按其降序重排，
// 同分保持输入顺序。输入不被修改。
func (h *HybridScorer) RerankWithHybrid(candidates []index.Candidate) []index.Candidate {
	out := make([]index.Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		out[i].HybridScore = h.Hybrid(out[i])
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].HybridScore > out[j].HybridScore
	})
	return out
}

// normalizeScore 将余弦范围 [-1,1] 线性映射到 [0,1]；
// 落在 [-1,1] 之外的值钳位到 [0,1]。
func normalizeScore(score float64) float64 {
	if score >= -1 && score <= 1 {
		return (score + 1) / 2
	}
	if score > 1 {
		return 1
	}
	return 0
}
