package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BaSui01/ragflow/types"
)

// TextLoader 把纯文本文件整体作为一个文档。
type TextLoader struct{}

// NewTextLoader 创建 TextLoader。
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load 读取文本文件并返回单个文档。
func (l *TextLoader) Load(ctx context.Context, source string) ([]types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("text loader: %w", err)
	}

	return []types.Document{{
		ID:      source,
		Content: string(data),
		Source:  source,
		Metadata: map[string]any{
			"source_file":  filepath.Base(source),
			"content_type": "text/plain",
			"loader":       "text",
		},
	}}, nil
}

// SupportedTypes 返回 TextLoader 处理的扩展名。
func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt"}
}
