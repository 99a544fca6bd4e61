package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// ChunkingService 对文档应用可配置的分块策略并传播元数据。
type ChunkingService struct {
	base       ChunkingConfig
	splitter   Splitter
	tokenizer  Tokenizer
	heuristics bool
	logger     *zap.Logger
}

// ChunkingServiceOption 配置 ChunkingService 的可选参数。
type ChunkingServiceOption func(*ChunkingService)

// WithSplitter 指定切分器（默认 RecursiveSplitter）。
func WithSplitter(s Splitter) ChunkingServiceOption {
	return func(c *ChunkingService) { c.splitter = s }
}

// WithTokenizer 指定分词器，启用块级 token_count 元数据。
func WithTokenizer(t Tokenizer) ChunkingServiceOption {
	return func(c *ChunkingService) { c.tokenizer = t }
}

// WithHeuristics 控制是否启用文档启发式（默认启用）。
func WithHeuristics(enabled bool) ChunkingServiceOption {
	return func(c *ChunkingService) { c.heuristics = enabled }
}

// NewChunkingService 创建分块服务。
// base 非法时返回 CONFIG_ERROR。
func NewChunkingService(base ChunkingConfig, logger *zap.Logger, opts ...ChunkingServiceOption) (*ChunkingService, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &ChunkingService{
		base:       base,
		splitter:   NewRecursiveSplitter(),
		heuristics: true,
		logger:     logger.With(zap.String("component", "chunking")),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SplitDocuments 将文档切分为块并传播元数据。
// 每个块携带父文档元数据、配置的 metadata_fields，以及
// chunk_index / chunk_count / chunk_size / chunk_overlap /
// language / split_timestamp（可选 token_count）。
func (c *ChunkingService) SplitDocuments(docs []types.Document) []types.Document {
	var chunks []types.Document
	for _, doc := range docs {
		cfg := ResolvePolicy(doc, c.base, c.heuristics)
		pieces := c.splitter.Split(doc.Content, cfg)
		stamp := time.Now().UTC().Format(time.RFC3339)

		for idx, piece := range pieces {
			meta := make(map[string]any, len(doc.Metadata)+len(cfg.MetadataFields)+7)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			for k, v := range cfg.MetadataFields {
				meta[k] = v
			}
			meta["chunk_index"] = idx
			meta["chunk_count"] = len(pieces)
			meta["chunk_size"] = cfg.ChunkSize
			meta["chunk_overlap"] = cfg.ChunkOverlap
			meta["split_timestamp"] = stamp
			if cfg.Language != "" {
				meta["language"] = cfg.Language
			}
			if c.tokenizer != nil {
				meta["token_count"] = c.tokenizer.CountTokens(piece)
			}

			chunks = append(chunks, types.Document{
				Content:  piece,
				Metadata: meta,
				Source:   doc.Source,
			})
		}

		c.logger.Debug("document chunked",
			zap.String("source", doc.Source),
			zap.Int("chunks", len(pieces)),
			zap.Int("chunk_size", cfg.ChunkSize),
			zap.Int("overlap", cfg.ChunkOverlap))
	}
	return chunks
}
