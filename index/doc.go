// Package index 实现带过滤的向量检索索引。
//
// RetrievalIndex 在存储后端之上提供两类操作：顺序保持的批量写入
// （写入返回后立即可查，无最终一致性窗口），以及带过滤谓词下推与
// 超采样候选池的 k 近邻搜索。过滤代数：元数据等值、集合成员、
// 时效范围、访问权限（public-if-absent OR 权限交集）。
package index
