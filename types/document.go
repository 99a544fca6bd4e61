package types

// Document 是进入摄取管线的源文档。
// 各组件之间显式传递该具体值类型，内容与元数据分离。
type Document struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Source   string         `json:"source,omitempty"`
}

// PageCount 从元数据中读取页数（支持 page_count / num_pages 两种键）。
// 元数据缺失或类型不符时返回 (0, false)。
func (d Document) PageCount() (int, bool) {
	for _, key := range []string{"page_count", "num_pages"} {
		switch v := d.Metadata[key].(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			// JSON 反序列化的数字默认为 float64。
			return int(v), true
		}
	}
	return 0, false
}

// MetaString 读取字符串类型的元数据字段，缺失时返回空字符串。
func (d Document) MetaString(key string) string {
	if v, ok := d.Metadata[key].(string); ok {
		return v
	}
	return ""
}
