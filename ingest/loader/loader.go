// 软件包 loader 按文件扩展名将原始文件解析为待摄取的文档。
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/ragflow/types"
)

// DocumentLoader 从单个来源读取文档。source 通常是文件路径。
type DocumentLoader interface {
	Load(ctx context.Context, source string) ([]types.Document, error)

	// SupportedTypes 返回该加载器处理的扩展名（如 ".txt", ".md"）。
	SupportedTypes() []string
}

// Registry 按扩展名把 Load 调用路由到对应的加载器。
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // 小写扩展名（含点）→ 加载器
}

// NewRegistry 创建带全部内置加载器的注册表。
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]DocumentLoader)}

	builtins := []DocumentLoader{
		NewTextLoader(),
		NewMarkdownLoader(),
		NewCSVLoader(CSVConfig{}),
		NewJSONLoader(JSONConfig{}),
	}
	for _, l := range builtins {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// Register 注册或覆盖一个扩展名的加载器。ext 含前导点（如 ".pdf"）。
func (r *Registry) Register(ext string, l DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = l
}

// Load 按扩展名选择加载器并委托。
func (r *Registry) Load(ctx context.Context, source string) ([]types.Document, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", source)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}
	return l.Load(ctx, source)
}

// LoadDir 递归遍历目录，加载所有已注册扩展名的文件。
// 未注册的扩展名直接跳过，不算错误。
func (r *Registry) LoadDir(ctx context.Context, dir string) ([]types.Document, error) {
	var docs []types.Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		r.mu.RLock()
		_, ok := r.loaders[ext]
		r.mu.RUnlock()
		if !ok {
			return nil
		}

		loaded, err := r.Load(ctx, path)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walking %s: %w", dir, err)
	}
	return docs, nil
}

// SupportedTypes 返回所有已注册扩展名，排序后输出。
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
