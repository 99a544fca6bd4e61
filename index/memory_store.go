package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// MemoryStore 内存存储后端（用于测试和小规模应用）。
// 写入即可见，天然满足立即一致性契约。
type MemoryStore struct {
	chunks []Chunk
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryStore 创建内存存储后端。
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		chunks: make([]Chunk, 0),
		logger: logger.With(zap.String("component", "memory_store")),
	}
}

// Add 追加块。
func (s *MemoryStore) Add(ctx context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return types.NewErrorf(types.ErrConfig, "chunk[%d] has no embedding", i)
		}
		s.chunks = append(s.chunks, chunk)
	}

	s.logger.Debug("chunks added",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(s.chunks)))
	return nil
}

// Search 计算余弦相似度，在进程内求值谓词树，按分数降序返回 Top-K。
func (s *MemoryStore) Search(ctx context.Context, queryVector []float64, k int, filter *Filter) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 || k <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		if !filter.Matches(chunk) {
			continue
		}
		hits = append(hits, Hit{
			Chunk: chunk,
			Score: cosineSimilarity(queryVector, chunk.Embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete 按 ID 删除块。
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	filtered := s.chunks[:0]
	for _, chunk := range s.chunks {
		if !idSet[chunk.ID] {
			filtered = append(filtered, chunk)
		}
	}
	s.chunks = filtered
	return nil
}

// Count 返回块数量。
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// HealthCheck 内存后端恒为 healthy。
func (s *MemoryStore) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{Status: HealthHealthy, CollectionExists: true}
}

// cosineSimilarity 余弦相似度；维度不匹配或零向量返回 0。
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
