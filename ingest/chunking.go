package ingest

import (
	"math"

	"github.com/BaSui01/ragflow/types"
)

// 启发式调整的边界常量。
const (
	minChunkSize    = 400
	maxChunkSize    = 1200
	heuristicStep   = 200
	shortDocPenalty = 300
	overlapRatio    = 0.15
	minChunkOverlap = 50
	largePageCount  = 50
	smallPageCount  = 5
	shortDocLength  = 2000
	longDocLength   = 12000
)

// ChunkingConfig 控制文本切分行为。
// 一经解析即不可变；构造时校验 overlap < size。
type ChunkingConfig struct {
	ChunkSize      int               `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap   int               `json:"chunk_overlap" yaml:"chunk_overlap"`
	Separators     []string          `json:"separators,omitempty" yaml:"separators,omitempty"`
	Language       string            `json:"language,omitempty" yaml:"language,omitempty"`
	MetadataFields map[string]string `json:"metadata_fields,omitempty" yaml:"metadata_fields,omitempty"`
}

// DefaultChunkingConfig 返回默认分块配置。
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    800,
		ChunkOverlap: 120,
		Separators:   []string{"\n\n", "\n", ". ", " "},
	}
}

// Validate 校验配置合法性。
// overlap >= size、size <= 0、overlap < 0 均返回 CONFIG_ERROR。
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return types.NewErrorf(types.ErrConfig, "chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return types.NewErrorf(types.ErrConfig, "chunk_overlap must be non-negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return types.NewErrorf(types.ErrConfig, "chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// clone 返回配置的深拷贝，避免解析结果与基础配置共享可变状态。
func (c ChunkingConfig) clone() ChunkingConfig {
	out := c
	if c.Separators != nil {
		out.Separators = append([]string(nil), c.Separators...)
	}
	if c.MetadataFields != nil {
		out.MetadataFields = make(map[string]string, len(c.MetadataFields))
		for k, v := range c.MetadataFields {
			out.MetadataFields[k] = v
		}
	}
	return out
}

// ResolvePolicy 根据文档启发式解析每文档的分块配置。
//
// heuristicsEnabled 为 false 时原样返回 base。否则按以下顺序调整块大小：
//
//	page_count > 50        → clamp(size+200, 800, 1200)
//	page_count < 5         → max(size-300, 400)
//	doc_length < 2000      → max(size-200, 400)
//	doc_length > 12000     → min(size+200, 1200)
//	其余                    → 不变
//
// 重叠随块大小等比缩放：max(round(size*0.15), 50)；若重叠 >= 块大小则取 size/4。
// 结果恒满足 overlap < size。纯函数，幂等。
func ResolvePolicy(doc types.Document, base ChunkingConfig, heuristicsEnabled bool) ChunkingConfig {
	if !heuristicsEnabled {
		return base
	}

	resolved := base.clone()
	size := resolved.ChunkSize
	docLength := len(doc.Content)

	pageCount, hasPages := doc.PageCount()
	switch {
	case hasPages && pageCount > largePageCount:
		size = clampInt(size+heuristicStep, 800, maxChunkSize)
	case hasPages && pageCount < smallPageCount:
		size = maxInt(size-shortDocPenalty, minChunkSize)
	case docLength < shortDocLength:
		size = maxInt(size-heuristicStep, minChunkSize)
	case docLength > longDocLength:
		size = minInt(size+heuristicStep, maxChunkSize)
	}

	overlap := maxInt(int(math.Round(float64(size)*overlapRatio)), minChunkOverlap)
	if overlap >= size {
		overlap = size / 4
	}

	resolved.ChunkSize = size
	resolved.ChunkOverlap = overlap
	if resolved.Language == "" {
		resolved.Language = doc.MetaString("language")
	}
	return resolved
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
