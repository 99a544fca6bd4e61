package grounding

import "github.com/pmezard/go-difflib/difflib"

// fuzzySimilarity 计算两段文本的模糊相似度，范围 [0,1]。
//
// 逐字符构造序列后用最长匹配块比率（difflib SequenceMatcher），
// 确定性度量：相同输入恒得相同分数。
func fuzzySimilarity(text1, text2 string) float64 {
	return difflib.NewMatcher(splitRunes(text1), splitRunes(text2)).Ratio()
}

func splitRunes(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
