package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizePathLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/health", "/health"},
		{"/archives/abc123", "/archives/*"},
		{"/archives/abc123/parts/0", "/archives/*"},
		{"/archives", "/archives"}, // Edge case: treated as segment, maybe should be /archives? Code says: if len(segs) <= 1 return / + segs[0]
		{"/archives?query=param", "/archives"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := sanitizePathLabel(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRecordHTTPRequest_Cardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	// Record requests with high cardinality paths
	m.RecordHTTPRequest(context.Background(), "GET", "/archives/arc1", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/archives/arc2", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/users/u1", http.StatusOK, time.Millisecond, 100)

	// Check that we have collapsed paths
	// We expect /archives/* and /users/*

	// Verify /archives/* count is 2
	countArchives := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/archives/*", "OK"))
	assert.Equal(t, 2.0, countArchives)

	// Verify /users/* count is 1
	countUsers := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/users/*", "OK"))
	assert.Equal(t, 1.0, countUsers)
}

func TestRecordProviderOperation_DisableProviderLabel(t *testing.T) {
	// Create metrics with provider label disabled
	reg := prometheus.NewRegistry()
	cfg := Config{EnableProviderLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordProviderOperation(context.Background(), "upload", "webhook", time.Millisecond)
	m.RecordProviderOperation(context.Background(), "upload", "bot", time.Millisecond)

	// Should align to provider="*"
	count := testutil.ToFloat64(m.providerOperationsTotal.WithLabelValues("upload", "*"))
	assert.Equal(t, 2.0, count)

	// Verify that specific providers are NOT tracked.
	// Note: testutil.ToFloat64 panics or returns 0 if label values don't match existing metric.
	// However, since we didn't record them, we can't easily check for "absence" with ToFloat64
	// without knowing if it returns 0 for non-existent label set or if it errors.
	// But checking the aggregate "*" is sufficient to prove logic path was taken.
}

func TestRecordProviderError_DisableProviderLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{EnableProviderLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordProviderError(context.Background(), "upload", "webhook", "timeout")
	m.RecordProviderError(context.Background(), "upload", "bot", "timeout")

	count := testutil.ToFloat64(m.providerOperationErrors.WithLabelValues("upload", "*", "timeout"))
	assert.Equal(t, 2.0, count)
}
