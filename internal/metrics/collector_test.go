package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith("ragflow_test", reg, nil)

	c.RecordSearch("memory", "success", 10*time.Millisecond)
	c.RecordChunksIndexed(3)
	c.RecordQuery("success", 100*time.Millisecond)
	c.RecordRerankFallback()
	c.RecordRerankFallback()
	c.RecordPromptFallback()
	c.RecordVerifierFailure()
	c.RecordGroundingConfidence(0.85)
	c.RecordBackendRequest("qdrant", "search", "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.searchesTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.chunksIndexed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rerankFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.promptFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verifierFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.backendRequestsTotal.WithLabelValues("qdrant", "search", "success")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	require.NotPanics(t, func() {
		c.RecordSearch("memory", "success", time.Millisecond)
		c.RecordChunksIndexed(1)
		c.RecordQuery("error", time.Second)
		c.RecordRerankFallback()
		c.RecordPromptFallback()
		c.RecordVerifierFailure()
		c.RecordGroundingConfidence(0.5)
		c.RecordBackendRequest("qdrant", "upsert", "error")
	})
}
