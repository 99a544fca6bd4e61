package index

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// StorageBackend 是检索索引的存储后端接口。
// Add 返回后写入必须立即可查（实现负责强制刷新/等待可见性）。
// Search 接收已构造的谓词树并尽可能下推执行。
type StorageBackend interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, queryVector []float64, k int, filter *Filter) ([]Hit, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) HealthStatus
}

// Hit 后端返回的单条命中。
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Health 分类常量。
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthError    = "error"
)

// HealthStatus 后端健康分类结果。
type HealthStatus struct {
	Status           string `json:"status"`
	CollectionExists bool   `json:"collection_exists"`
	Message          string `json:"message,omitempty"`
}

// DefaultOversampleFactor 是超采样候选池的默认倍数。
// 过滤下推会裁剪候选，先取 k×N 的池子以限制召回损失。
const DefaultOversampleFactor = 10

// Config 配置检索索引。
type Config struct {
	// Dimension 是索引的固定向量维度，写入与查询向量都必须匹配。
	Dimension int `json:"dimension" yaml:"dimension"`
	// OversampleFactor 超采样倍数，0 使用默认值 10。
	OversampleFactor int `json:"oversample_factor" yaml:"oversample_factor"`
}

// RetrievalIndex 在存储后端之上提供带过滤的向量检索。
// 自身无可变状态，可安全并发使用（后端按其自身契约保证并发安全）。
type RetrievalIndex struct {
	backend    StorageBackend
	dimension  int
	oversample int
	logger     *zap.Logger
	now        func() time.Time
}

// New 创建检索索引。维度必须为正。
func New(backend StorageBackend, cfg Config, logger *zap.Logger) (*RetrievalIndex, error) {
	if backend == nil {
		return nil, types.NewError(types.ErrConfig, "storage backend is required")
	}
	if cfg.Dimension <= 0 {
		return nil, types.NewErrorf(types.ErrConfig, "index dimension must be positive, got %d", cfg.Dimension)
	}
	oversample := cfg.OversampleFactor
	if oversample <= 0 {
		oversample = DefaultOversampleFactor
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetrievalIndex{
		backend:    backend,
		dimension:  cfg.Dimension,
		oversample: oversample,
		logger:     logger.With(zap.String("component", "retrieval_index")),
		now:        time.Now,
	}, nil
}

// Dimension 返回索引的固定向量维度。
func (idx *RetrievalIndex) Dimension() int { return idx.dimension }

// Add 将文档块与预计算的向量写入索引，返回与输入同序的生成 ID。
//
// 向量由调用方提供（嵌入是外部能力）；数量或维度不匹配分别返回
// CONFIG_ERROR / DIMENSION_MISMATCH。每个块获得生成的唯一 ID 与
// created_at 时间戳。返回时索引立即可查。
func (idx *RetrievalIndex) Add(ctx context.Context, docs []types.Document, embeddings [][]float64) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}
	if len(embeddings) != len(docs) {
		return nil, types.NewErrorf(types.ErrConfig,
			"embeddings count (%d) does not match document count (%d)", len(embeddings), len(docs))
	}

	now := idx.now().UTC()
	ids := make([]string, len(docs))
	chunks := make([]Chunk, len(docs))
	for i, doc := range docs {
		if len(embeddings[i]) != idx.dimension {
			return nil, types.NewErrorf(types.ErrDimensionMismatch,
				"document[%d] embedding dimension mismatch: got=%d want=%d", i, len(embeddings[i]), idx.dimension)
		}
		ids[i] = uuid.NewString()
		chunks[i] = Chunk{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Source:    doc.Source,
			Embedding: embeddings[i],
			CreatedAt: now,
		}
	}

	if err := idx.backend.Add(ctx, chunks); err != nil {
		return nil, err
	}

	idx.logger.Info("chunks indexed",
		zap.Int("count", len(chunks)))
	return ids, nil
}

// SearchOptions 搜索的可选约束。
type SearchOptions struct {
	// Filters 元数据过滤：标量值为等值匹配，列表值为集合成员匹配。
	Filters map[string]any
	// MinScore 相关性下界，nil 表示不限制。
	MinScore *float64
	// MaxAgeDays 只返回 created_at 在 N 天内的块，0 表示不限制。
	MaxAgeDays int
	// UserPermissions 非 nil 时启用访问控制谓词。
	UserPermissions []string
}

// Search 执行带过滤的 k 近邻搜索，按相关性降序返回候选。
//
// 先向后端请求 k×OversampleFactor 的超采样池，再应用 minScore 与
// 截断，限制过滤下推造成的召回损失。零命中返回空列表而非错误；
// 后端不可达返回 CONNECTIVITY_ERROR，过滤值非法返回 CONFIG_ERROR。
func (idx *RetrievalIndex) Search(ctx context.Context, queryVector []float64, k int, opts SearchOptions) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}
	if len(queryVector) != idx.dimension {
		return nil, types.NewErrorf(types.ErrDimensionMismatch,
			"query vector dimension mismatch: got=%d want=%d", len(queryVector), idx.dimension)
	}

	filter, err := BuildFilter(opts.Filters, opts.MaxAgeDays, opts.UserPermissions, idx.now().UTC())
	if err != nil {
		return nil, err
	}

	pool := k * idx.oversample
	hits, err := idx.backend.Search(ctx, queryVector, pool, filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, minInt(k, len(hits)))
	for _, hit := range hits {
		if opts.MinScore != nil && hit.Score < *opts.MinScore {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:       hit.Chunk.ID,
			Content:  hit.Chunk.Content,
			Snippet:  MakeSnippet(hit.Chunk.Content),
			Source:   hit.Chunk.Source,
			Score:    hit.Score,
			Metadata: hit.Chunk.Metadata,
		})
		if len(candidates) == k {
			break
		}
	}

	idx.logger.Debug("search completed",
		zap.Int("pool", pool),
		zap.Int("hits", len(hits)),
		zap.Int("returned", len(candidates)))
	return candidates, nil
}

// HealthCheck 返回后端健康分类。
func (idx *RetrievalIndex) HealthCheck(ctx context.Context) HealthStatus {
	return idx.backend.HealthCheck(ctx)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
