// Package types 定义 ragflow 各组件共享的值类型与统一错误结构。
//
// 该包不依赖任何其他 ragflow 包，处于依赖图的最底层。
package types
