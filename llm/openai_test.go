package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

// 接口合规性检查
var (
	_ EmbeddingBackend  = (*OpenAIEmbedding)(nil)
	_ GenerationBackend = (*OpenAIGeneration)(nil)
)

func TestEmbedDocumentsRestoresOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// 乱序返回，适配器应按 index 还原。
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1}},
				{"index": 0, "embedding": []float64{1, 0}},
			},
		})
	}))
	defer server.Close()

	backend := NewOpenAIEmbedding(EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Dimensions: 2,
	})

	vectors, err := backend.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1}, vectors[1])
	assert.Equal(t, 2, backend.Dimensions())
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	backend := NewOpenAIEmbedding(EmbeddingConfig{BaseURL: "http://unused"})
	vectors, err := backend.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedDocumentsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend := NewOpenAIEmbedding(EmbeddingConfig{BaseURL: server.URL})
	_, err := backend.EmbedDocuments(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrEmbedding))
}

func TestEmbedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{0.5, 0.5}},
			},
		})
	}))
	defer server.Close()

	backend := NewOpenAIEmbedding(EmbeddingConfig{BaseURL: server.URL})
	vec, err := backend.EmbedQuery(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, vec)
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.2, req.Temperature)
		assert.Equal(t, 256, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "grounded answer"}},
			},
		})
	}))
	defer server.Close()

	backend := NewOpenAIGeneration(GenerationConfig{BaseURL: server.URL})
	answer, err := backend.Generate(context.Background(), "prompt", 0.2, 256)
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", answer)
}

func TestGenerateBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewOpenAIGeneration(GenerationConfig{BaseURL: server.URL})
	_, err := backend.Generate(context.Background(), "prompt", 0, 0)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrGeneration))
}

func TestStreamGenerateSinglePass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "streamed"}},
			},
		})
	}))
	defer server.Close()

	backend := NewOpenAIGeneration(GenerationConfig{BaseURL: server.URL})
	ch, err := backend.StreamGenerate(context.Background(), "prompt", 0, 0)
	require.NoError(t, err)

	var parts []string
	for part := range ch {
		parts = append(parts, part)
	}
	assert.Equal(t, []string{"streamed"}, parts)
}
