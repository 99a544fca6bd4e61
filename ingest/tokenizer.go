package ingest

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 分词器接口，用于块元数据中的 token 计数。
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer 基于 tiktoken 编码的分词器。
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer 创建 tiktoken 分词器。
// model 指定编码模型（如 "gpt-4o", "gpt-4", "gpt-3.5-turbo"）。
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("create tiktoken encoding for %q: %w", model, err)
	}
	return &TiktokenTokenizer{encoding: enc}, nil
}

// CountTokens 返回文本的 token 数。
func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// EstimatorTokenizer 基于字符数估算的分词器（~4 字符/token）。
// 不需要下载编码数据，适合测试与离线环境。
type EstimatorTokenizer struct{}

// CountTokens 估算 token 数。
func (t *EstimatorTokenizer) CountTokens(text string) int {
	return len(text) / 4
}

// NewTokenizer 优先创建 tiktoken 分词器，失败时回退到字符估算并记录警告。
func NewTokenizer(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	tok, err := NewTiktokenTokenizer(model)
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to character estimate",
			zap.String("model", model),
			zap.Error(err))
		return &EstimatorTokenizer{}
	}
	return tok
}
