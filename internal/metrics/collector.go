// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil 接收者安全，所有记录方法变为 no-op。
type Collector struct {
	// 检索指标
	searchesTotal  *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	chunksIndexed  prometheus.Counter

	// 查询管线指标
	queriesTotal        *prometheus.CounterVec
	queryDuration       prometheus.Histogram
	rerankFallbacks     prometheus.Counter
	promptFallbacks     prometheus.Counter
	verifierFailures    prometheus.Counter
	groundingConfidence prometheus.Histogram

	// 后端指标
	backendRequestsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器（注册到默认 Registry）
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith 创建指标收集器并注册到指定 Registry（便于测试隔离）
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 检索指标
	c.searchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of index searches",
		},
		[]string{"status"},
	)

	c.searchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Index search duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	c.chunksIndexed = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks written to the index",
		},
	)

	// 查询管线指标
	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of pipeline queries",
		},
		[]string{"status"},
	)

	c.queryDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	c.rerankFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_fallbacks_total",
			Help:      "Total number of rerank identity fallbacks after scorer failure",
		},
	)

	c.promptFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_fallbacks_total",
			Help:      "Total number of prompt strategy fallbacks to the plain template",
		},
	)

	c.verifierFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifier_failures_total",
			Help:      "Total number of grounding verifier failures absorbed by the pipeline",
		},
	)

	c.groundingConfidence = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grounding_confidence",
			Help:      "Distribution of grounding verification confidence scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// 后端指标
	c.backendRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of external backend requests",
		},
		[]string{"backend", "operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔍 检索指标记录
// =============================================================================

// RecordSearch 记录一次索引搜索
func (c *Collector) RecordSearch(backend, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.searchesTotal.WithLabelValues(status).Inc()
	c.searchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordChunksIndexed 记录写入索引的块数量
func (c *Collector) RecordChunksIndexed(count int) {
	if c == nil {
		return
	}
	c.chunksIndexed.Add(float64(count))
}

// =============================================================================
// 🧭 查询管线指标记录
// =============================================================================

// RecordQuery 记录一次端到端查询
func (c *Collector) RecordQuery(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(status).Inc()
	c.queryDuration.Observe(duration.Seconds())
}

// RecordRerankFallback 记录一次重排降级
func (c *Collector) RecordRerankFallback() {
	if c == nil {
		return
	}
	c.rerankFallbacks.Inc()
}

// RecordPromptFallback 记录一次提示模板降级
func (c *Collector) RecordPromptFallback() {
	if c == nil {
		return
	}
	c.promptFallbacks.Inc()
}

// RecordVerifierFailure 记录一次校验器内部失败
func (c *Collector) RecordVerifierFailure() {
	if c == nil {
		return
	}
	c.verifierFailures.Inc()
}

// RecordGroundingConfidence 记录校验置信度分布
func (c *Collector) RecordGroundingConfidence(confidence float64) {
	if c == nil {
		return
	}
	c.groundingConfidence.Observe(confidence)
}

// =============================================================================
// 🌐 后端指标记录
// =============================================================================

// RecordBackendRequest 记录一次外部后端请求
func (c *Collector) RecordBackendRequest(backend, operation, status string) {
	if c == nil {
		return
	}
	c.backendRequestsTotal.WithLabelValues(backend, operation, status).Inc()
}
