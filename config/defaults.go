// =============================================================================
// 📦 ragflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Chunking:  DefaultChunkingConfig(),
		Index:     DefaultIndexConfig(),
		Qdrant:    DefaultQdrantConfig(),
		Rerank:    DefaultRerankConfig(),
		Grounding: DefaultGroundingConfig(),
		LLM:       DefaultLLMConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultChunkingConfig 返回默认切块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:         800,
		ChunkOverlap:      120,
		Separators:        []string{"\n\n", "\n", "。", ". ", " "},
		HeuristicsEnabled: true,
		TokenizerModel:    "gpt-4",
	}
}

// DefaultIndexConfig 返回默认索引配置
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Store:            "memory",
		Dimension:        3072,
		OversampleFactor: 10,
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:                 "localhost",
		Port:                 6333,
		Collection:           "ragflow_chunks",
		Timeout:              30 * time.Second,
		AutoCreateCollection: true,
		Distance:             "Cosine",
	}
}

// DefaultRerankConfig 返回默认重排配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Enabled:        false,
		Provider:       "cohere",
		PoolSize:       20,
		MaxCandidates:  200,
		BatchSize:      32,
		HybridEnabled:  false,
		SemanticWeight: 0.3,
		RerankWeight:   0.7,
	}
}

// DefaultGroundingConfig 返回默认引用校验配置
func DefaultGroundingConfig() GroundingConfig {
	return GroundingConfig{
		Enabled:             true,
		SimilarityThreshold: 0.75,
		StrictMode:          false,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:             "https://api.openai.com",
		ChatModel:           "gpt-4o-mini",
		EmbeddingModel:      "text-embedding-3-large",
		EmbeddingDimensions: 3072,
		Timeout:             60 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}
