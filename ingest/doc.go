// Package ingest 提供文档摄取阶段的自适应分块策略。
//
// 分块配置从静态默认值出发，结合文档启发式（页数、长度）在摄取时解析，
// 随后交给通用的 Splitter 执行实际切分。策略解析是纯函数：相同输入
// 必然产生相同配置。
package ingest
