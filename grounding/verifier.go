// 软件包 grounding 将生成的回答与检索证据比对，缓解幻觉。
package grounding

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/index"
)

// DefaultSimilarityThreshold 模糊匹配的默认相似度下界。
const DefaultSimilarityThreshold = 0.75

// confidenceFloor 置信度低于该值即产生告警，也是 is_grounded 的下界。
const confidenceFloor = 0.7

// Report 单次校验的结果。每次查询构建一次，之后不可变。
type Report struct {
	IsGrounded       bool             `json:"is_grounded"`
	Confidence       float64          `json:"confidence"`
	GroundedClaims   []string         `json:"grounded_claims"`
	UngroundedClaims []string         `json:"ungrounded_claims"`
	SourceMatches    map[string][]int `json:"source_matches"`
	Warnings         []string         `json:"warnings"`
}

// Config 校验器配置。
type Config struct {
	// SimilarityThreshold 模糊匹配下界，0 使用默认值 0.75。
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	// StrictMode 严格模式：只接受精确/子串匹配，禁用模糊匹配。
	StrictMode bool `json:"strict_mode" yaml:"strict_mode"`
}

// Verifier 将回答中的断言与来源文本比对并产出 Report。
// 无可变状态，可安全并发使用。
type Verifier struct {
	threshold  float64
	strictMode bool
	logger     *zap.Logger
}

// NewVerifier 创建校验器。
func NewVerifier(cfg Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	logger = logger.With(zap.String("component", "grounding_verifier"))
	logger.Info("grounding verifier initialized",
		zap.Float64("threshold", threshold),
		zap.Bool("strict_mode", cfg.StrictMode))

	return &Verifier{
		threshold:  threshold,
		strictMode: cfg.StrictMode,
		logger:     logger,
	}
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// 不影响语义的填充短语，断言清洗时剔除。
var fillerPhrases = []string{
	"according to the document",
	"based on the information",
	"the source states",
	"it is mentioned that",
	"the text says",
}

// 元语句前缀，这类句子不作为断言。
var metaPrefixes = []string{"I ", "However", "Note that", "Please"}

// Verify 校验回答是否由来源支撑。
//
// 整体匹配与逐断言匹配两条路径：整体匹配看回答与任一来源的
// 子串或模糊相似关系；checkClaims 开启时再把回答切分为断言逐条
// 核对。置信度为有断言时的支撑比例，否则取整体匹配结果。
func (v *Verifier) Verify(answer string, sources []index.Candidate, checkClaims bool) *Report {
	if len(sources) == 0 {
		v.logger.Warn("no sources provided for grounding verification")
		ungrounded := []string{}
		if checkClaims {
			ungrounded = []string{answer}
		}
		return &Report{
			IsGrounded:       false,
			Confidence:       0.0,
			GroundedClaims:   []string{},
			UngroundedClaims: ungrounded,
			SourceMatches:    map[string][]int{},
			Warnings:         []string{"No sources available for verification"},
		}
	}

	sourceTexts := make([]string, len(sources))
	for i, src := range sources {
		text := src.Content
		if text == "" {
			text = src.Snippet
		}
		sourceTexts[i] = strings.ToLower(text)
	}

	answerLower := strings.ToLower(answer)
	overallGrounded := v.textGrounded(answerLower, sourceTexts)

	groundedClaims := []string{}
	ungroundedClaims := []string{}
	sourceMatches := map[string][]int{}

	var claims []string
	if checkClaims {
		claims = extractClaims(answer)

		for _, claim := range claims {
			claimLower := strings.ToLower(claim)
			var matching []int
			for idx, sourceText := range sourceTexts {
				if v.claimInSource(claimLower, sourceText) {
					matching = append(matching, idx)
				}
			}
			if len(matching) > 0 {
				groundedClaims = append(groundedClaims, claim)
				sourceMatches[claim] = matching
			} else {
				ungroundedClaims = append(ungroundedClaims, claim)
			}
		}
	}

	var confidence float64
	if checkClaims && len(claims) > 0 {
		confidence = float64(len(groundedClaims)) / float64(len(claims))
	} else if overallGrounded {
		confidence = 1.0
	}

	isGrounded := confidence >= confidenceFloor || overallGrounded

	warnings := []string{}
	if confidence < confidenceFloor {
		warnings = append(warnings, fmt.Sprintf("Low grounding confidence: %.2f%%", confidence*100))
	}
	if len(ungroundedClaims) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d ungrounded claims detected", len(ungroundedClaims)))
	}
	if v.strictMode && !overallGrounded {
		warnings = append(warnings, "Strict mode: answer not directly found in sources")
	}

	v.logger.Info("grounding check complete",
		zap.Bool("grounded", isGrounded),
		zap.Float64("confidence", confidence),
		zap.Int("grounded_claims", len(groundedClaims)),
		zap.Int("total_claims", len(claims)))

	return &Report{
		IsGrounded:       isGrounded,
		Confidence:       confidence,
		GroundedClaims:   groundedClaims,
		UngroundedClaims: ungroundedClaims,
		SourceMatches:    sourceMatches,
		Warnings:         warnings,
	}
}

// textGrounded 整体匹配：子串命中（双向），非严格模式下再尝试
// 模糊相似度。text 与 sources 均已小写。
func (v *Verifier) textGrounded(text string, sources []string) bool {
	for _, source := range sources {
		if strings.Contains(source, text) || strings.Contains(text, source) {
			return true
		}
	}

	if !v.strictMode {
		for _, source := range sources {
			if fuzzySimilarity(text, source) >= v.threshold {
				return true
			}
		}
	}
	return false
}

// claimInSource 单条断言是否由来源支撑。claim 与 source 已小写。
func (v *Verifier) claimInSource(claim, source string) bool {
	cleaned := cleanClaim(claim)

	// 过短的断言无法可靠核对，显式从宽处理。
	if len(cleaned) < 10 {
		return true
	}

	if strings.Contains(source, cleaned) {
		return true
	}

	if !v.strictMode {
		claimWords := strings.Fields(cleaned)
		sourceWords := strings.Fields(source)

		// 短断言直接与整个来源比对。
		if len(claimWords) <= 3 {
			return fuzzySimilarity(cleaned, source) >= v.threshold
		}

		// 长断言在来源上滑动窗口。
		windowSize := len(claimWords)
		if windowSize > 20 {
			windowSize = 20
		}
		for i := 0; i+windowSize <= len(sourceWords); i++ {
			window := strings.Join(sourceWords[i:i+windowSize], " ")
			if fuzzySimilarity(cleaned, window) >= v.threshold {
				return true
			}
		}
	}
	return false
}

// extractClaims 把回答按句号/感叹号/问号切分为断言，过滤噪声：
// 过短的句子、疑问句、元语句。
func extractClaims(answer string) []string {
	sentences := sentenceBoundary.Split(answer, -1)

	claims := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)

		if len(sentence) < 15 {
			continue
		}
		if strings.Contains(sentence, "?") {
			continue
		}
		if hasMetaPrefix(sentence) {
			continue
		}
		claims = append(claims, sentence)
	}
	return claims
}

func hasMetaPrefix(sentence string) bool {
	for _, prefix := range metaPrefixes {
		if strings.HasPrefix(sentence, prefix) {
			return true
		}
	}
	return false
}

// cleanClaim 剔除填充短语并压缩空白。
func cleanClaim(claim string) string {
	for _, filler := range fillerPhrases {
		claim = strings.ReplaceAll(claim, filler, "")
	}
	return strings.Join(strings.Fields(claim), " ")
}

// FormatReport 渲染人类可读的校验摘要：最多 5 条已支撑断言
// （带来源编号）、最多 3 条未支撑断言、全部告警。
func FormatReport(report *Report) string {
	lines := []string{
		"=== Citation Verification Report ===",
		fmt.Sprintf("Overall Grounded: %t", report.IsGrounded),
		fmt.Sprintf("Confidence: %.2f%%", report.Confidence*100),
		"",
		fmt.Sprintf("Grounded Claims (%d):", len(report.GroundedClaims)),
	}

	shown := report.GroundedClaims
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, claim := range shown {
		refs := make([]string, 0)
		for _, idx := range report.SourceMatches[claim] {
			refs = append(refs, fmt.Sprintf("[%d]", idx+1))
		}
		lines = append(lines, fmt.Sprintf("  ✓ %s... (sources: %s)",
			truncateClaim(claim, 80), strings.Join(refs, ", ")))
	}
	if len(report.GroundedClaims) > 5 {
		lines = append(lines, fmt.Sprintf("  ... and %d more", len(report.GroundedClaims)-5))
	}

	if len(report.UngroundedClaims) > 0 {
		lines = append(lines, "", fmt.Sprintf("Ungrounded Claims (%d):", len(report.UngroundedClaims)))
		shown := report.UngroundedClaims
		if len(shown) > 3 {
			shown = shown[:3]
		}
		for _, claim := range shown {
			lines = append(lines, fmt.Sprintf("  ✗ %s...", truncateClaim(claim, 80)))
		}
	}

	if len(report.Warnings) > 0 {
		lines = append(lines, "", "Warnings:")
		for _, warning := range report.Warnings {
			lines = append(lines, "  ⚠ "+warning)
		}
	}

	return strings.Join(lines, "\n")
}

func truncateClaim(claim string, limit int) string {
	runes := []rune(claim)
	if len(runes) <= limit {
		return claim
	}
	return string(runes[:limit])
}
