package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

func TestNewChunkingService_RejectsInvalidConfig(t *testing.T) {
	_, err := NewChunkingService(ChunkingConfig{ChunkSize: 100, ChunkOverlap: 100}, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestChunkingService_SplitDocuments_MetadataPropagation(t *testing.T) {
	base := ChunkingConfig{
		ChunkSize:      100,
		ChunkOverlap:   10,
		Separators:     []string{"\n\n", "\n", ". ", " "},
		MetadataFields: map[string]string{"pipeline": "v2"},
	}
	svc, err := NewChunkingService(base, nil, WithHeuristics(false), WithTokenizer(&EstimatorTokenizer{}))
	require.NoError(t, err)

	doc := types.Document{
		Content:  strings.Repeat("This is a sentence about retrieval. ", 20),
		Source:   "handbook.txt",
		Metadata: map[string]any{"category": "education"},
	}

	chunks := svc.SplitDocuments([]types.Document{doc})
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, "handbook.txt", chunk.Source)
		assert.Equal(t, "education", chunk.Metadata["category"])
		assert.Equal(t, "v2", chunk.Metadata["pipeline"])
		assert.Equal(t, i, chunk.Metadata["chunk_index"])
		assert.Equal(t, len(chunks), chunk.Metadata["chunk_count"])
		assert.Equal(t, 100, chunk.Metadata["chunk_size"])
		assert.Equal(t, 10, chunk.Metadata["chunk_overlap"])
		assert.NotEmpty(t, chunk.Metadata["split_timestamp"])
		assert.NotZero(t, chunk.Metadata["token_count"])
	}
}

func TestChunkingService_SplitDocuments_EmptyDocument(t *testing.T) {
	svc, err := NewChunkingService(DefaultChunkingConfig(), nil)
	require.NoError(t, err)

	chunks := svc.SplitDocuments([]types.Document{{Content: "   "}})
	assert.Empty(t, chunks)
}

func TestRecursiveSplitter_RespectsChunkSize(t *testing.T) {
	splitter := NewRecursiveSplitter()
	cfg := ChunkingConfig{ChunkSize: 80, ChunkOverlap: 0, Separators: []string{"\n\n", "\n", ". ", " "}}

	text := strings.Repeat("Short sentence here. ", 30)
	chunks := splitter.Split(text, cfg)

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 80, "chunk %d too large", i)
	}
}

func TestRecursiveSplitter_Overlap(t *testing.T) {
	splitter := NewRecursiveSplitter()
	cfg := ChunkingConfig{ChunkSize: 50, ChunkOverlap: 10, Separators: []string{" "}}

	text := strings.Repeat("word ", 60)
	chunks := splitter.Split(text, cfg)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-10:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d does not start with previous tail", i)
	}
}

func TestRecursiveSplitter_HardSplitFallback(t *testing.T) {
	splitter := NewRecursiveSplitter()
	cfg := ChunkingConfig{ChunkSize: 10, ChunkOverlap: 0, Separators: []string{"\n\n"}}

	// 无分隔符命中时按字符硬切。
	chunks := splitter.Split(strings.Repeat("x", 35), cfg)
	assert.Len(t, chunks, 4)
	for _, chunk := range chunks[:3] {
		assert.Len(t, chunk, 10)
	}
}

func TestRecursiveSplitter_PreservesContent(t *testing.T) {
	splitter := NewRecursiveSplitter()
	cfg := ChunkingConfig{ChunkSize: 40, ChunkOverlap: 0, Separators: []string{"\n\n", "\n", ". ", " "}}

	text := "First paragraph about chunking.\n\nSecond paragraph about retrieval quality and ranking."
	chunks := splitter.Split(text, cfg)

	assert.Equal(t, text, strings.Join(chunks, ""))
}
