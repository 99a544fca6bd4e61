// Package llm 提供嵌入与生成两类外部模型能力的统一接口和适配器.
package llm

import "context"

// EmbeddingBackend 嵌入能力接口.
type EmbeddingBackend interface {
	// EmbedDocuments 为多个文档生成嵌入，输出与输入同序.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// EmbedQuery 为单个查询生成嵌入.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// Dimensions 返回嵌入向量维度.
	Dimensions() int
}

// GenerationBackend 文本生成能力接口.
type GenerationBackend interface {
	// Generate 对给定提示生成回答. maxTokens <= 0 使用后端默认值.
	Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)

	// StreamGenerate 流式生成，通道随生成结束关闭.
	StreamGenerate(ctx context.Context, prompt string, temperature float64, maxTokens int) (<-chan string, error)
}
