package index

import (
	"time"

	"github.com/BaSui01/ragflow/types"
)

// AccessLevelKey 是访问控制谓词读取的元数据键。
// 不携带该键的文档视为公开，对所有请求者可见。
const AccessLevelKey = "access_level"

// TermClause 元数据等值谓词。
type TermClause struct {
	Key   string
	Value any
}

// SetClause 元数据集合成员谓词（值命中任一元素即匹配）。
type SetClause struct {
	Key    string
	Values []any
}

// Filter 是搜索的合取谓词树：所有子句按 AND 组合。
// 权限子句内部为 OR（公开 OR 权限交集），再与其余子句 AND。
// 构造是纯函数，Filter 本身无状态、可跨 goroutine 复用。
type Filter struct {
	Terms        []TermClause
	Sets         []SetClause
	CreatedAfter *time.Time
	// Permissions 非 nil 时启用访问控制谓词；空切片表示请求者无任何权限，
	// 此时仅公开文档匹配。
	Permissions []string
}

// IsEmpty 报告过滤器是否不含任何谓词。
func (f *Filter) IsEmpty() bool {
	return f == nil ||
		(len(f.Terms) == 0 && len(f.Sets) == 0 && f.CreatedAfter == nil && f.Permissions == nil)
}

// BuildFilter 从原始过滤值构造谓词树。
//
// meta 中的标量值生成等值子句，列表值生成集合成员子句；
// 其他类型（嵌套 map 等）返回 CONFIG_ERROR。
// maxAgeDays > 0 时生成 created_at >= now-maxAgeDays 的时效子句。
// permissions 非 nil 时生成访问控制子句。
func BuildFilter(meta map[string]any, maxAgeDays int, permissions []string, now time.Time) (*Filter, error) {
	f := &Filter{}

	for key, value := range meta {
		switch v := value.(type) {
		case []any:
			values, err := scalarList(key, v)
			if err != nil {
				return nil, err
			}
			f.Sets = append(f.Sets, SetClause{Key: key, Values: values})
		case []string:
			values := make([]any, len(v))
			for i, s := range v {
				values[i] = s
			}
			f.Sets = append(f.Sets, SetClause{Key: key, Values: values})
		default:
			if !isScalar(value) {
				return nil, types.NewErrorf(types.ErrConfig,
					"filter value for %q must be a scalar or a list of scalars, got %T", key, value)
			}
			f.Terms = append(f.Terms, TermClause{Key: key, Value: value})
		}
	}

	if maxAgeDays > 0 {
		cutoff := now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
		f.CreatedAfter = &cutoff
	}

	if permissions != nil {
		f.Permissions = append([]string(nil), permissions...)
	}

	return f, nil
}

func scalarList(key string, values []any) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if !isScalar(v) {
			return nil, types.NewErrorf(types.ErrConfig,
				"filter list for %q must contain only scalars, got %T", key, v)
		}
		out = append(out, v)
	}
	return out, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// Matches 在进程内对单个块求值整棵谓词树。
// 远程后端改为将谓词翻译为各自的查询 DSL 下推执行。
func (f *Filter) Matches(chunk Chunk) bool {
	if f == nil {
		return true
	}

	for _, term := range f.Terms {
		if !scalarEqual(chunk.Metadata[term.Key], term.Value) {
			return false
		}
	}

	for _, set := range f.Sets {
		actual, ok := chunk.Metadata[set.Key]
		if !ok {
			return false
		}
		matched := false
		for _, candidate := range set.Values {
			if scalarEqual(actual, candidate) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.CreatedAfter != nil && chunk.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}

	if f.Permissions != nil && !f.matchesAccess(chunk) {
		return false
	}

	return true
}

// matchesAccess 求值访问控制谓词：
// 无 access_level → 公开；否则文档访问级别与请求者权限有交集。
func (f *Filter) matchesAccess(chunk Chunk) bool {
	raw, ok := chunk.Metadata[AccessLevelKey]
	if !ok || raw == nil {
		return true
	}

	allowed := make(map[string]bool, len(f.Permissions))
	for _, p := range f.Permissions {
		allowed[p] = true
	}

	switch levels := raw.(type) {
	case string:
		return allowed[levels]
	case []string:
		for _, level := range levels {
			if allowed[level] {
				return true
			}
		}
	case []any:
		for _, level := range levels {
			if s, ok := level.(string); ok && allowed[s] {
				return true
			}
		}
	}
	return false
}

// scalarEqual 比较两个标量元数据值，数值跨类型按 float64 比较。
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return float64(n), true
	default:
		return 0, false
	}
}
