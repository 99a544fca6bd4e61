package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/ragflow/index"
	"github.com/BaSui01/ragflow/types"
)

func TestNewHybridScorerValidation(t *testing.T) {
	tests := []struct {
		name     string
		semantic float64
		rerank   float64
		wantErr  bool
	}{
		{"valid weights", 0.3, 0.7, false},
		{"exact sum with tolerance", 0.5, 0.505, false},
		{"negative weight", -0.1, 0.7, true},
		{"weight above one", 1.2, 0.3, true},
		{"both zero", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHybridScorer(tt.semantic, tt.rerank, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrConfig))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestHybridWeightRenormalization(t *testing.T) {
	h, err := NewHybridScorer(0.4, 0.4, nil)
	require.NoError(t, err)

	sem, rr := h.Weights()
	assert.InDelta(t, 0.5, sem, 1e-9)
	assert.InDelta(t, 0.5, rr, 1e-9)
}

func TestNormalizeScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{0, 0.5},
		{1, 1},
		{0.5, 0.75},
		{2.5, 1},
		{-3, 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, normalizeScore(tt.in), 1e-9)
	}
}

func TestHybridScore(t *testing.T) {
	h, err := NewHybridScorer(0.5, 0.5, nil)
	require.NoError(t, err)

	c := index.Candidate{Score: 0.0, RerankScore: 1.0}
	// 0.5·normalize(0) + 0.5·normalize(1) = 0.5·0.5 + 0.5·1 = 0.75
	assert.InDelta(t, 0.75, h.Hybrid(c), 1e-9)
}

func TestRerankWithHybrid(t *testing.T) {
	h, err := NewHybridScorer(0.3, 0.7, nil)
	require.NoError(t, err)

	in := []index.Candidate{
		{ID: "a", Score: 0.9, RerankScore: 0.1},
		{ID: "b", Score: 0.1, RerankScore: 0.9},
	}

	out := h.RerankWithHybrid(in)
	require.Len(t, out, 2)
	// 重排分数权重更高，b 应排在前面。
	assert.Equal(t, "b", out[0].ID)
	assert.Greater(t, out[0].HybridScore, out[1].HybridScore)

	// 输入不被修改。
	assert.Zero(t, in[0].HybridScore)
}

func TestHybridScoreBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sem := rapid.Float64Range(0, 1).Draw(t, "sem")
		rr := rapid.Float64Range(0, 1).Draw(t, "rr")
		if sem == 0 && rr == 0 {
			t.Skip()
		}

		h, err := NewHybridScorer(sem, rr, nil)
		require.NoError(t, err)

		c := index.Candidate{
			Score:       rapid.Float64Range(-2, 2).Draw(t, "score"),
			RerankScore: rapid.Float64Range(-2, 2).Draw(t, "rerank_score"),
		}
		got := h.Hybrid(c)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0+1e-9)
	})
}
