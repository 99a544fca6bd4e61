// 软件包 rerank 提供交叉编码重排序与混合分数融合。
package rerank

import "context"

// QueryDocPair 查询-文档对
type QueryDocPair struct {
	Query    string
	Document string
}

// RerankModel 重排模型能力接口：为每个 (query, text) 对输出一个
// 相关性分数，同步、无副作用，不保证任何排序。
type RerankModel interface {
	// Predict 计算每对的相关性分数，输出与输入同序同长。
	Predict(ctx context.Context, pairs []QueryDocPair) ([]float64, error)
}

// ModelLoader 延迟构造重排模型。首次使用时调用一次，失败可观测
// 但不中断查询（重排器整体降级）。
type ModelLoader func() (RerankModel, error)
