package grounding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/index"
)

func newVerifier(t *testing.T, strict bool) *Verifier {
	t.Helper()
	return NewVerifier(Config{StrictMode: strict}, nil)
}

func sources(texts ...string) []index.Candidate {
	out := make([]index.Candidate, len(texts))
	for i, text := range texts {
		out[i] = index.Candidate{ID: string(rune('a' + i)), Content: text}
	}
	return out
}

func TestVerifyNoSources(t *testing.T) {
	v := newVerifier(t, false)

	report := v.Verify("The capital of France is Paris.", nil, true)
	assert.False(t, report.IsGrounded)
	assert.Equal(t, 0.0, report.Confidence)
	assert.Equal(t, []string{"The capital of France is Paris."}, report.UngroundedClaims)
	assert.Contains(t, report.Warnings, "No sources available for verification")

	// checkClaims 关闭时不回填 ungrounded。
	report = v.Verify("anything", nil, false)
	assert.Empty(t, report.UngroundedClaims)
	assert.False(t, report.IsGrounded)
}

func TestVerifyDirectSubstring(t *testing.T) {
	v := newVerifier(t, false)

	report := v.Verify(
		"The warranty period is two years.",
		sources("Our policy: the warranty period is two years from the purchase date."),
		true)

	assert.True(t, report.IsGrounded)
	assert.Equal(t, 1.0, report.Confidence)
	require.Len(t, report.GroundedClaims, 1)
	assert.Equal(t, []int{0}, report.SourceMatches[report.GroundedClaims[0]])
	assert.Empty(t, report.UngroundedClaims)
}

func TestVerifyFuzzyParaphrase(t *testing.T) {
	v := newVerifier(t, false)

	// 轻微改写仍应通过模糊匹配。
	report := v.Verify(
		"The sky is blue.",
		sources("the sky is blue today"),
		false)

	assert.True(t, report.IsGrounded)
	assert.Equal(t, 1.0, report.Confidence)
}

func TestVerifyStrictModeDisablesFuzzy(t *testing.T) {
	answer := "The sky is blue."
	src := sources("the sky is blue today")

	lenient := newVerifier(t, false)
	strict := newVerifier(t, true)

	// 非严格模式靠模糊匹配通过，严格模式仅子串命中有效。
	assert.True(t, lenient.Verify(answer, src, false).IsGrounded)

	strictReport := strict.Verify(answer, src, false)
	assert.False(t, strictReport.IsGrounded)
	assert.Contains(t, strictReport.Warnings, "Strict mode: answer not directly found in sources")
}

func TestVerifyUngroundedClaims(t *testing.T) {
	v := newVerifier(t, false)

	answer := "The warranty period is two years. The company was founded on the moon in 1850 by space pirates."
	report := v.Verify(answer,
		sources("the warranty period is two years from purchase"),
		true)

	assert.Len(t, report.GroundedClaims, 1)
	assert.Len(t, report.UngroundedClaims, 1)
	assert.InDelta(t, 0.5, report.Confidence, 1e-9)
	assert.False(t, report.IsGrounded)

	foundLow := false
	foundCount := false
	for _, w := range report.Warnings {
		if strings.HasPrefix(w, "Low grounding confidence") {
			foundLow = true
		}
		if w == "1 ungrounded claims detected" {
			foundCount = true
		}
	}
	assert.True(t, foundLow)
	assert.True(t, foundCount)
}

func TestVerifyConfidenceThreshold(t *testing.T) {
	v := newVerifier(t, false)

	// 4 条断言中 3 条有支撑 → confidence 0.75 ≥ 0.7 → grounded。
	answer := "The plan includes unlimited storage for teams. " +
		"Billing happens at the start of each month. " +
		"Support responds within one business day. " +
		"The service guarantees faster than light replication everywhere."
	src := sources(
		"the plan includes unlimited storage for teams",
		"billing happens at the start of each month",
		"support responds within one business day",
	)

	report := v.Verify(answer, src, true)
	assert.InDelta(t, 0.75, report.Confidence, 1e-9)
	assert.True(t, report.IsGrounded)
}

func TestVerifyDeterministic(t *testing.T) {
	v := newVerifier(t, false)
	answer := "The warranty period is two years. Some completely unrelated statement about dragons."
	src := sources("the warranty period is two years")

	first := v.Verify(answer, src, true)
	second := v.Verify(answer, src, true)
	assert.Equal(t, first, second)
}

func TestVerifySnippetFallback(t *testing.T) {
	v := newVerifier(t, false)

	// Content 为空时回退到 Snippet。
	src := []index.Candidate{{ID: "a", Snippet: "the warranty period is two years"}}
	report := v.Verify("The warranty period is two years.", src, true)
	assert.True(t, report.IsGrounded)
}

func TestExtractClaims(t *testing.T) {
	answer := "The warranty period is two years. " +
		"I think this is helpful. " +
		"However, there are exceptions to consider. " +
		"Note that terms may change over time. " +
		"Please contact support for more details. " +
		"Short. " +
		"Billing happens at the start of each month!"

	claims := extractClaims(answer)
	require.Len(t, claims, 2)
	assert.Equal(t, "The warranty period is two years", claims[0])
	assert.Equal(t, "Billing happens at the start of each month", claims[1])
}

func TestExtractClaimsDropsQuestions(t *testing.T) {
	claims := extractClaims("What is the warranty period exactly? The warranty period is two years.")
	require.Len(t, claims, 1)
	assert.Equal(t, "The warranty period is two years", claims[0])
}

func TestCleanClaim(t *testing.T) {
	got := cleanClaim("according to the document the warranty   lasts two years")
	assert.Equal(t, "the warranty lasts two years", got)
}

func TestShortClaimLeniency(t *testing.T) {
	v := newVerifier(t, false)
	// 清洗后不足 10 字符的断言默认视为有支撑。
	assert.True(t, v.claimInSource("it is mentioned that yes ok", "entirely unrelated source text"))
}

func TestFuzzySimilarity(t *testing.T) {
	assert.Equal(t, 1.0, fuzzySimilarity("same text", "same text"))
	assert.Equal(t, 0.0, fuzzySimilarity("abc", "xyz"))

	mid := fuzzySimilarity("the sky is blue", "the sky is bright")
	assert.Greater(t, mid, 0.5)
	assert.Less(t, mid, 1.0)
}

func TestFormatReport(t *testing.T) {
	report := &Report{
		IsGrounded:     true,
		Confidence:     0.8,
		GroundedClaims: []string{"claim one", "claim two"},
		UngroundedClaims: []string{
			"made up statement",
		},
		SourceMatches: map[string][]int{
			"claim one": {0, 2},
			"claim two": {1},
		},
		Warnings: []string{"1 ungrounded claims detected"},
	}

	out := FormatReport(report)
	assert.Contains(t, out, "=== Citation Verification Report ===")
	assert.Contains(t, out, "Overall Grounded: true")
	assert.Contains(t, out, "Confidence: 80.00%")
	assert.Contains(t, out, "Grounded Claims (2):")
	assert.Contains(t, out, "claim one... (sources: [1], [3])")
	assert.Contains(t, out, "Ungrounded Claims (1):")
	assert.Contains(t, out, "made up statement")
	assert.Contains(t, out, "⚠ 1 ungrounded claims detected")
}

func TestFormatReportTruncatesLists(t *testing.T) {
	grounded := make([]string, 7)
	for i := range grounded {
		grounded[i] = strings.Repeat("g", 20)
	}
	report := &Report{
		GroundedClaims:   grounded,
		UngroundedClaims: []string{"u1", "u2", "u3", "u4"},
		SourceMatches:    map[string][]int{},
	}

	out := FormatReport(report)
	assert.Contains(t, out, "... and 2 more")
	assert.NotContains(t, out, "u4")
}
