package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// GenerationConfig configures the OpenAI-compatible generation backend.
type GenerationConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // gpt-4o-mini
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIGeneration implements GenerationBackend against an OpenAI-compatible
// /v1/chat/completions endpoint.
type OpenAIGeneration struct {
	cfg    GenerationConfig
	client *http.Client
}

// NewOpenAIGeneration creates a new OpenAI-compatible generation backend.
func NewOpenAIGeneration(cfg GenerationConfig) *OpenAIGeneration {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIGeneration{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate produces a completion for the prompt.
func (p *OpenAIGeneration) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	body := chatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
	}
	if maxTokens > 0 {
		body.MaxTokens = maxTokens
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/chat/completions",
		bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrConnectivity, "generation request failed").
			WithProvider("openai").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return "", types.NewErrorf(types.ErrGeneration,
			"generation error: status=%d body=%s", resp.StatusCode, string(raw)).
			WithProvider("openai")
	}

	var cResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", types.NewError(types.ErrGeneration, "failed to decode generation response").
			WithProvider("openai").WithCause(err)
	}
	if len(cResp.Choices) == 0 {
		return "", types.NewError(types.ErrGeneration, "generation returned no choices").
			WithProvider("openai")
	}
	return cResp.Choices[0].Message.Content, nil
}

// StreamGenerate emits the completion over a channel closed on completion.
// The current implementation performs a single non-streaming call and
// delivers the whole answer as one message.
func (p *OpenAIGeneration) StreamGenerate(ctx context.Context, prompt string, temperature float64, maxTokens int) (<-chan string, error) {
	answer, err := p.Generate(ctx, prompt, temperature, maxTokens)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 1)
	out <- answer
	close(out)
	return out, nil
}
