package index

import "time"

// Chunk 是索引中的检索单元：内容 + 元数据 + 向量。
// Embedding 长度必须等于索引的固定维度。
type Chunk struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Source    string         `json:"source,omitempty"`
	Embedding []float64      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Candidate 是单次搜索返回的候选，携带相关性分数。
// 在一次查询的生命周期内由重排器原位补充 rerank_score，响应
// 构建完成后即丢弃，不做持久化。
type Candidate struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Snippet     string         `json:"snippet"`
	Source      string         `json:"source"`
	Score       float64        `json:"score"`
	RerankScore float64        `json:"rerank_score,omitempty"`
	HybridScore float64        `json:"hybrid_score,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// snippetLength 是候选摘要的最大长度。
const snippetLength = 200

// MakeSnippet 将内容截断为摘要：超过 200 字符时截断并追加省略号。
func MakeSnippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}
