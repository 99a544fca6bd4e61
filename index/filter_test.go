package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

func TestBuildFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		meta        map[string]any
		maxAgeDays  int
		permissions []string
		wantErr     bool
		check       func(t *testing.T, f *Filter)
	}{
		{
			name: "scalar values become term clauses",
			meta: map[string]any{"department": "legal", "year": 2024},
			check: func(t *testing.T, f *Filter) {
				assert.Len(t, f.Terms, 2)
				assert.Empty(t, f.Sets)
			},
		},
		{
			name: "list values become set clauses",
			meta: map[string]any{"category": []any{"policy", "report"}},
			check: func(t *testing.T, f *Filter) {
				require.Len(t, f.Sets, 1)
				assert.Equal(t, "category", f.Sets[0].Key)
				assert.Len(t, f.Sets[0].Values, 2)
			},
		},
		{
			name: "string slice also becomes set clause",
			meta: map[string]any{"tags": []string{"a", "b"}},
			check: func(t *testing.T, f *Filter) {
				require.Len(t, f.Sets, 1)
				assert.Equal(t, []any{"a", "b"}, f.Sets[0].Values)
			},
		},
		{
			name:    "nested map is rejected",
			meta:    map[string]any{"range": map[string]any{"gte": 1}},
			wantErr: true,
		},
		{
			name:    "list with nested value is rejected",
			meta:    map[string]any{"bad": []any{"ok", map[string]any{}}},
			wantErr: true,
		},
		{
			name:       "max age produces cutoff",
			maxAgeDays: 30,
			check: func(t *testing.T, f *Filter) {
				require.NotNil(t, f.CreatedAfter)
				assert.Equal(t, now.Add(-30*24*time.Hour), *f.CreatedAfter)
			},
		},
		{
			name:        "nil permissions disables access predicate",
			permissions: nil,
			check: func(t *testing.T, f *Filter) {
				assert.Nil(t, f.Permissions)
				assert.True(t, f.IsEmpty())
			},
		},
		{
			name:        "empty permissions still enables access predicate",
			permissions: []string{},
			check: func(t *testing.T, f *Filter) {
				require.NotNil(t, f.Permissions)
				assert.Empty(t, f.Permissions)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := BuildFilter(tt.meta, tt.maxAgeDays, tt.permissions, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrConfig))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	chunk := func(meta map[string]any, age time.Duration) Chunk {
		return Chunk{ID: "c1", Content: "text", Metadata: meta, CreatedAt: now.Add(-age)}
	}

	tests := []struct {
		name  string
		meta  map[string]any
		perms []string
		age   int
		chunk Chunk
		want  bool
	}{
		{
			name:  "term match",
			meta:  map[string]any{"department": "legal"},
			chunk: chunk(map[string]any{"department": "legal"}, 0),
			want:  true,
		},
		{
			name:  "term mismatch",
			meta:  map[string]any{"department": "legal"},
			chunk: chunk(map[string]any{"department": "hr"}, 0),
			want:  false,
		},
		{
			name:  "term missing key",
			meta:  map[string]any{"department": "legal"},
			chunk: chunk(map[string]any{}, 0),
			want:  false,
		},
		{
			name:  "numeric cross-type equality",
			meta:  map[string]any{"year": 2024},
			chunk: chunk(map[string]any{"year": float64(2024)}, 0),
			want:  true,
		},
		{
			name:  "set membership",
			meta:  map[string]any{"category": []any{"policy", "report"}},
			chunk: chunk(map[string]any{"category": "report"}, 0),
			want:  true,
		},
		{
			name:  "set miss",
			meta:  map[string]any{"category": []any{"policy", "report"}},
			chunk: chunk(map[string]any{"category": "memo"}, 0),
			want:  false,
		},
		{
			name:  "fresh chunk passes age filter",
			age:   30,
			chunk: chunk(nil, 10*24*time.Hour),
			want:  true,
		},
		{
			name:  "stale chunk fails age filter",
			age:   30,
			chunk: chunk(nil, 45*24*time.Hour),
			want:  false,
		},
		{
			name:  "no access_level means public",
			perms: []string{},
			chunk: chunk(map[string]any{"department": "legal"}, 0),
			want:  true,
		},
		{
			name:  "access level intersects permissions",
			perms: []string{"finance", "hr"},
			chunk: chunk(map[string]any{AccessLevelKey: []any{"hr"}}, 0),
			want:  true,
		},
		{
			name:  "access level string form",
			perms: []string{"hr"},
			chunk: chunk(map[string]any{AccessLevelKey: "hr"}, 0),
			want:  true,
		},
		{
			name:  "access level disjoint",
			perms: []string{"finance"},
			chunk: chunk(map[string]any{AccessLevelKey: []any{"hr", "legal"}}, 0),
			want:  false,
		},
		{
			name:  "restricted chunk with no permissions",
			perms: []string{},
			chunk: chunk(map[string]any{AccessLevelKey: "hr"}, 0),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := BuildFilter(tt.meta, tt.age, tt.perms, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(tt.chunk))
		})
	}
}

func TestFilterMatchesNilFilter(t *testing.T) {
	var f *Filter
	assert.True(t, f.Matches(Chunk{ID: "x"}))
	assert.True(t, f.IsEmpty())
}

func TestMakeSnippet(t *testing.T) {
	short := "brief content"
	assert.Equal(t, short, MakeSnippet(short))

	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789"
	}
	snippet := MakeSnippet(long)
	assert.Len(t, []rune(snippet), snippetLength+3)
	assert.True(t, len(snippet) < len(long))
}
