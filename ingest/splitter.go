package ingest

import "strings"

// Splitter 是通用文本切分器接口。
// 分块策略只负责产出配置；具体切分算法对策略层是黑盒。
type Splitter interface {
	Split(text string, cfg ChunkingConfig) []string
}

// RecursiveSplitter 按分隔符优先级递归切分文本。
// 优先在段落/句子边界分割，单段超限时降级到下一级分隔符，
// 最终兜底为按字符硬切。块之间按 ChunkOverlap 字符前向重叠。
type RecursiveSplitter struct{}

// NewRecursiveSplitter 创建默认切分器。
func NewRecursiveSplitter() *RecursiveSplitter {
	return &RecursiveSplitter{}
}

// Split 将文本切分为不超过 cfg.ChunkSize 字符的块。
func (s *RecursiveSplitter) Split(text string, cfg ChunkingConfig) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	separators := cfg.Separators
	if len(separators) == 0 {
		separators = DefaultChunkingConfig().Separators
	}

	pieces := s.split(text, separators, cfg.ChunkSize)
	return s.applyOverlap(pieces, cfg.ChunkOverlap)
}

func (s *RecursiveSplitter) split(text string, separators []string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.hardSplit(text, size)
	}

	sep := separators[0]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// 当前分隔符未命中，降级到下一级。
		return s.split(text, separators[1:], size)
	}

	var chunks []string
	current := ""
	for _, part := range parts {
		if len(part) > size {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
			}
			chunks = append(chunks, s.split(part, separators[1:], size)...)
			continue
		}
		if len(current)+len(part) > size && current != "" {
			chunks = append(chunks, current)
			current = part
			continue
		}
		current += part
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// hardSplit 按 rune 边界硬切（最后手段）。
func (s *RecursiveSplitter) hardSplit(text string, size int) []string {
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// applyOverlap 将前一块的尾部 overlap 字符前缀到后一块。
func (s *RecursiveSplitter) applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		start := len(prev) - overlap
		if start < 0 {
			start = 0
		}
		out[i] = string(prev[start:]) + chunks[i]
	}
	return out
}
