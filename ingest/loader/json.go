package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

// JSONConfig 配置 JSON/JSONL 加载器。
type JSONConfig struct {
	// ContentField 作为 Content 的字段名，为空时序列化整个对象。
	ContentField string
	// IDField 作为 ID 的字段名，为空时按路径生成。
	IDField string
}

// JSONLoader 加载 JSON（单对象或数组）与 JSONL 文件。
type JSONLoader struct {
	config JSONConfig
}

// NewJSONLoader 创建 JSONLoader。
func NewJSONLoader(config JSONConfig) *JSONLoader {
	return &JSONLoader{config: config}
}

// Load 读取 JSON 或 JSONL 文件并返回文档。
func (l *JSONLoader) Load(ctx context.Context, source string) ([]types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.ToLower(filepath.Ext(source)) == ".jsonl" {
		return l.loadJSONL(source)
	}
	return l.loadJSON(source)
}

// loadJSON 处理 .json 文件（单对象或数组）。
func (l *JSONLoader) loadJSON(source string) ([]types.Document, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("json loader: %w", err)
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return []types.Document{}, nil
	}

	if data[0] == '[' {
		var items []map[string]any
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("json loader: parsing array in %s: %w", source, err)
		}
		return l.objectsToDocs(source, items), nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("json loader: parsing object in %s: %w", source, err)
	}
	return l.objectsToDocs(source, []map[string]any{obj}), nil
}

// loadJSONL 处理 .jsonl 文件（每行一个 JSON 对象）。
func (l *JSONLoader) loadJSONL(source string) ([]types.Document, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("jsonl loader: %w", err)
	}
	defer f.Close()

	var items []map[string]any
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("jsonl loader: line %d in %s: %w", lineNum, source, err)
		}
		items = append(items, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl loader: reading %s: %w", source, err)
	}

	return l.objectsToDocs(source, items), nil
}

// objectsToDocs 将解析出的 JSON 对象转换为文档。
func (l *JSONLoader) objectsToDocs(source string, items []map[string]any) []types.Document {
	baseName := filepath.Base(source)
	docs := make([]types.Document, 0, len(items))

	for i, obj := range items {
		docs = append(docs, types.Document{
			ID:      l.extractID(obj, source, i),
			Content: l.extractContent(obj),
			Source:  source,
			Metadata: map[string]any{
				"source_file":  baseName,
				"content_type": "application/json",
				"loader":       "json",
				"index":        i,
			},
		})
	}
	return docs
}

// extractContent 取出内容字段，缺失时序列化整个对象兜底。
func (l *JSONLoader) extractContent(obj map[string]any) string {
	if l.config.ContentField != "" {
		if val, ok := obj[l.config.ContentField]; ok {
			return fmt.Sprintf("%v", val)
		}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("%v", obj)
	}
	return string(data)
}

// extractID 取出 ID 字段，缺失时按路径生成。
func (l *JSONLoader) extractID(obj map[string]any, source string, index int) string {
	if l.config.IDField != "" {
		if val, ok := obj[l.config.IDField]; ok {
			return fmt.Sprintf("%v", val)
		}
	}
	return fmt.Sprintf("%s#%d", source, index)
}

// SupportedTypes 返回 JSONLoader 处理的扩展名。
func (l *JSONLoader) SupportedTypes() []string {
	return []string{".json", ".jsonl"}
}
