package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// QdrantConfig configures the Qdrant StorageBackend implementation.
//
// Notes:
//   - Qdrant point IDs are UUIDs; ragflow derives a stable UUID from Chunk.ID.
//   - Chunk content/metadata/created_at are stored in payload; created_at is a
//     unix timestamp so the age predicate can be pushed down as a range filter.
type QdrantConfig struct {
	Host       string        `json:"host" yaml:"host"`
	Port       int           `json:"port" yaml:"port"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	AutoCreateCollection bool   `json:"auto_create_collection,omitempty" yaml:"auto_create_collection,omitempty"`
	Distance             string `json:"distance,omitempty" yaml:"distance,omitempty"` // Cosine (default), Dot, Euclid
	VectorSize           int    `json:"vector_size,omitempty" yaml:"vector_size,omitempty"`
}

// QdrantStore implements StorageBackend using Qdrant's REST API.
// Writes use wait=true so chunks are searchable as soon as Add returns.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore creates a Qdrant-backed StorageBackend.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

var qdrantNamespace = uuid.MustParse("7c9f2d6e-1b4a-4c8d-9e3f-6a5b2c1d0e9f")

func qdrantPointID(chunkID string) string {
	// Stable UUID derived from chunk ID (supports any string input).
	return uuid.NewSHA1(qdrantNamespace, []byte(chunkID)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return types.NewError(types.ErrConfig, "qdrant collection is required")
	}
	if vectorSize <= 0 {
		return types.NewError(types.ErrConfig, "qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": s.cfg.Distance,
			},
		}

		endpoint := fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(s.cfg.Collection))
		reqBody, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			s.ensureErr = err
			return
		}
		s.applyHeaders(req)

		resp, err := s.client.Do(req)
		if err != nil {
			s.ensureErr = types.NewError(types.ErrConnectivity, "qdrant unreachable").WithCause(err)
			return
		}
		defer resp.Body.Close()

		// Qdrant returns 409 if collection exists.
		if resp.StatusCode == http.StatusConflict {
			s.ensureErr = nil
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			s.ensureErr = types.NewErrorf(types.ErrBackend,
				"qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
			return
		}
		s.ensureErr = nil
	})

	return s.ensureErr
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.baseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return types.NewErrorf(types.ErrConnectivity,
			"qdrant request failed: method=%s path=%s", method, path).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return types.NewErrorf(types.ErrBackend,
			"qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

const (
	qdrantContentField   = "content"
	qdrantMetadataField  = "metadata"
	qdrantIDField        = "chunk_id"
	qdrantSourceField    = "source"
	qdrantCreatedAtField = "created_at"
)

// Add upserts chunks as points with wait=true for immediate visibility.
func (s *QdrantStore) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return types.NewError(types.ErrConfig, "qdrant collection is required")
	}

	vectorSize := s.cfg.VectorSize
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return types.NewErrorf(types.ErrConfig, "chunk[%d] has empty id", i)
		}
		if len(chunk.Embedding) == 0 {
			return types.NewErrorf(types.ErrConfig, "chunk[%d] has no embedding", i)
		}
		if vectorSize == 0 {
			vectorSize = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != vectorSize {
			return types.NewErrorf(types.ErrDimensionMismatch,
				"chunk[%d] embedding dimension mismatch: got=%d want=%d", i, len(chunk.Embedding), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, point{
			ID:     qdrantPointID(chunk.ID),
			Vector: chunk.Embedding,
			Payload: map[string]any{
				qdrantIDField:        chunk.ID,
				qdrantContentField:   chunk.Content,
				qdrantMetadataField:  chunk.Metadata,
				qdrantSourceField:    chunk.Source,
				qdrantCreatedAtField: chunk.CreatedAt.Unix(),
			},
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPut, path, req, nil); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(chunks)))
	return nil
}

// Search runs a filtered kNN search, translating the predicate tree to
// Qdrant's filter DSL.
func (s *QdrantStore) Search(ctx context.Context, queryVector []float64, k int, filter *Filter) ([]Hit, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, types.NewError(types.ErrConfig, "qdrant collection is required")
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	if len(queryVector) == 0 {
		return nil, types.NewError(types.ErrConfig, "query vector is required")
	}

	req := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if qf := translateFilter(filter); qf != nil {
		req["filter"] = qf
	}

	type qdrantResult struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	var resp struct {
		Result []qdrantResult `json:"result"`
		Status string         `json:"status"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := Chunk{}
		if r.Payload != nil {
			if v, ok := r.Payload[qdrantIDField].(string); ok {
				chunk.ID = v
			}
			if v, ok := r.Payload[qdrantContentField].(string); ok {
				chunk.Content = v
			}
			if v, ok := r.Payload[qdrantMetadataField].(map[string]any); ok {
				chunk.Metadata = v
			}
			if v, ok := r.Payload[qdrantSourceField].(string); ok {
				chunk.Source = v
			}
			if v, ok := r.Payload[qdrantCreatedAtField].(float64); ok {
				chunk.CreatedAt = time.Unix(int64(v), 0).UTC()
			}
		}
		if chunk.ID == "" {
			// Fallback to point ID if payload does not include chunk_id.
			chunk.ID = fmt.Sprint(r.ID)
		}
		hits = append(hits, Hit{Chunk: chunk, Score: r.Score})
	}
	return hits, nil
}

// translateFilter converts the predicate tree to Qdrant filter DSL.
// All clauses land under "must"; the permission disjunction becomes a
// nested should-group (is_empty OR match-any), ANDed with the rest.
func translateFilter(filter *Filter) map[string]any {
	if filter.IsEmpty() {
		return nil
	}

	var must []map[string]any
	for _, term := range filter.Terms {
		must = append(must, map[string]any{
			"key":   qdrantMetadataField + "." + term.Key,
			"match": map[string]any{"value": term.Value},
		})
	}
	for _, set := range filter.Sets {
		must = append(must, map[string]any{
			"key":   qdrantMetadataField + "." + set.Key,
			"match": map[string]any{"any": set.Values},
		})
	}
	if filter.CreatedAfter != nil {
		must = append(must, map[string]any{
			"key":   qdrantCreatedAtField,
			"range": map[string]any{"gte": filter.CreatedAfter.Unix()},
		})
	}
	if filter.Permissions != nil {
		accessKey := qdrantMetadataField + "." + AccessLevelKey
		must = append(must, map[string]any{
			"should": []map[string]any{
				{"is_empty": map[string]any{"key": accessKey}},
				{"key": accessKey, "match": map[string]any{"any": filter.Permissions}},
			},
		})
	}

	return map[string]any{"must": must}
}

// Delete removes points by chunk ID.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return types.NewError(types.ErrConfig, "qdrant collection is required")
	}

	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		points = append(points, qdrantPointID(id))
	}

	req := struct {
		Points []string `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(s.cfg.Collection))
	return s.doJSON(ctx, http.MethodPost, path, req, nil)
}

// Count returns the exact point count.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return 0, types.NewError(types.ErrConfig, "qdrant collection is required")
	}

	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// HealthCheck classifies the backend: error when unreachable, degraded when
// reachable but the collection is missing, healthy otherwise.
func (s *QdrantStore) HealthCheck(ctx context.Context) HealthStatus {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.cfg.Collection))
	endpoint := s.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return HealthStatus{Status: HealthError, Message: err.Error()}
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return HealthStatus{Status: HealthError, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return HealthStatus{Status: HealthDegraded, CollectionExists: false, Message: "collection does not exist"}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return HealthStatus{Status: HealthHealthy, CollectionExists: true}
	default:
		return HealthStatus{Status: HealthDegraded, CollectionExists: false,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
}
