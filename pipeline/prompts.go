package pipeline

import (
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/types"
)

// PromptType 提示策略类型
type PromptType string

const (
	PromptStrict        PromptType = "strict"        // 严格接地（默认）
	PromptCitation      PromptType = "citation"      // 强制逐句引用
	PromptContradiction PromptType = "contradiction" // 矛盾感知
	PromptConfidence    PromptType = "confidence"    // 置信度标注
	PromptStructured    PromptType = "structured"    // 结构化输出
)

// PromptTemplate 提示模板接口：由查询、上下文块和候选来源渲染完整提示。
type PromptTemplate interface {
	Build(query, context string, sources []index.Candidate) (string, error)
}

const strictTemplate = `You are a helpful AI assistant that answers questions based ONLY on the provided context.

STRICT RULES - YOU MUST FOLLOW THESE:
1. ❌ NEVER invent, assume, or add information not present in the context
2. ✅ ALWAYS cite your sources using [Source 1], [Source 2], etc.
3. ✅ If information is NOT in the context, say "I don't have enough information to answer this"
4. ✅ If sources contradict each other, explicitly mention: "The sources provide conflicting information..."
5. ✅ Be precise and factual - use exact quotes when possible
6. ✅ If you're uncertain about something, express that uncertainty clearly

CONTEXT (Retrieved Documents):
%s

QUESTION: %s

ANSWER (following all rules above):`

const citationTemplate = `You are a precise AI assistant that provides well-cited answers.

YOUR TASK:
Answer the question using ONLY the information in the provided sources.
CITE every factual statement with [Source N] immediately after.

CITATION FORMAT EXAMPLE:
"Artificial Intelligence is the simulation of human intelligence [Source 1].
It has applications in healthcare, finance, and transportation [Source 2, Source 3]."

IMPORTANT RULES:
- Every claim must have a citation
- If no source supports a claim, DON'T make that claim
- Use exact wording from sources when possible
- If sources are insufficient, say: "The provided sources do not contain enough information to answer this question."

SOURCES:
%s

QUESTION: %s

YOUR CITED ANSWER:`

const contradictionTemplate = `You are a critical-thinking AI assistant that analyzes information carefully.

YOUR TASK:
Answer the question using the provided context. Pay special attention to:
1. Consistency across sources
2. Contradictions or disagreements
3. Strength of evidence

IF SOURCES AGREE:
Provide a clear answer citing all supporting sources.

IF SOURCES CONTRADICT:
1. Acknowledge the contradiction explicitly
2. Present both viewpoints fairly
3. Note if one source seems more authoritative/recent
4. DO NOT pick a side unless evidence strongly supports it

FORMAT YOUR ANSWER:
- Start with direct answer (if sources agree) OR "The sources provide conflicting information" (if they don't)
- Explain the evidence
- Cite sources: [Source 1], [Source 2], etc.

CONTEXT:
%s

QUESTION: %s

ANALYSIS AND ANSWER:`

const confidenceTemplate = `You are an honest AI assistant that expresses uncertainty when appropriate.

YOUR TASK:
Answer the question based on the provided context, and indicate your confidence level.

CONFIDENCE LEVELS:
- HIGH: Information is clearly stated in multiple sources
- MEDIUM: Information is present but limited or from a single source
- LOW: Information requires inference or is partially covered
- NONE: Information is not available in the sources

FORMAT:
**Confidence: [HIGH/MEDIUM/LOW/NONE]**

**Answer:**
[Your answer here, citing sources with [Source N]]

**Reasoning:**
[Brief explanation of why you chose this confidence level]

CONTEXT:
%s

QUESTION: %s

YOUR RESPONSE:`

const structuredTemplate = `You are an AI assistant that provides structured, well-formatted answers.

YOUR TASK:
Answer the question using the provided context and structure your response as follows:

STRUCTURE:
1. **Direct Answer:** [One sentence summary]
2. **Detailed Explanation:** [2-3 paragraphs with full details]
3. **Sources Used:** [List of source citations: Source 1, Source 2, etc.]
4. **Confidence:** [HIGH/MEDIUM/LOW]
5. **Limitations:** [Any gaps in the information or caveats]

RULES:
- Base answer ONLY on provided context
- If information is missing, state it clearly in "Limitations"
- Cite sources inline using [Source N]

CONTEXT:
%s

QUESTION: %s

STRUCTURED ANSWER:`

// plainTemplate 所有策略构建失败时的保底模板。
const plainTemplate = `You are an AI assistant helping users find information from documents.

Use the following context snippets to answer the user's question. If the context doesn't contain relevant information, say so clearly.

Context:
%s

Question: %s

Answer:`

// contextTemplate 按 {context, question} 填充固定模板。
type contextTemplate struct {
	template string
}

func (t *contextTemplate) Build(query, context string, _ []index.Candidate) (string, error) {
	return fmt.Sprintf(t.template, context, query), nil
}

// citationPrompt 引用模板用编号来源替代平铺上下文。
type citationPrompt struct{}

func (t *citationPrompt) Build(query, _ string, sources []index.Candidate) (string, error) {
	if len(sources) == 0 {
		return "", types.NewError(types.ErrConfig, "citation prompt requires at least one source")
	}
	return fmt.Sprintf(citationTemplate, formatNumberedSources(sources), query), nil
}

func formatNumberedSources(sources []index.Candidate) string {
	parts := make([]string, 0, len(sources))
	for i, src := range sources {
		content := src.Content
		if content == "" {
			content = src.Snippet
		}
		name := src.Source
		if name == "" {
			name = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[Source %d] (%s):\n%s\n", i+1, name, content))
	}
	return strings.Join(parts, "\n")
}

// PromptBuilder 按类型检索提示模板的注册表。
type PromptBuilder struct {
	templates map[PromptType]PromptTemplate
}

// NewPromptBuilder 创建带全部内置策略的注册表。
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: map[PromptType]PromptTemplate{
			PromptStrict:        &contextTemplate{template: strictTemplate},
			PromptCitation:      &citationPrompt{},
			PromptContradiction: &contextTemplate{template: contradictionTemplate},
			PromptConfidence:    &contextTemplate{template: confidenceTemplate},
			PromptStructured:    &contextTemplate{template: structuredTemplate},
		},
	}
}

// Get 按类型返回模板，未知类型返回 CONFIG_ERROR。空类型取默认 strict。
func (b *PromptBuilder) Get(promptType PromptType) (PromptTemplate, error) {
	if promptType == "" {
		promptType = PromptStrict
	}
	template, ok := b.templates[promptType]
	if !ok {
		return nil, types.NewErrorf(types.ErrConfig, "unknown prompt type: %q", promptType)
	}
	return template, nil
}

// Register 注册或覆盖一个自定义策略。
func (b *PromptBuilder) Register(promptType PromptType, template PromptTemplate) {
	b.templates[promptType] = template
}

// NewCustomPrompt 用系统消息构造一个简单自定义模板。
func NewCustomPrompt(systemMessage string) PromptTemplate {
	return &customPrompt{systemMessage: systemMessage}
}

type customPrompt struct {
	systemMessage string
}

func (t *customPrompt) Build(query, context string, _ []index.Candidate) (string, error) {
	return fmt.Sprintf("%s\n\n%s\n\n%s", t.systemMessage, context, query), nil
}

// buildPlainPrompt 保底 {context, question} 模板，永不失败。
func buildPlainPrompt(query, context string) string {
	return fmt.Sprintf(plainTemplate, context, query)
}
