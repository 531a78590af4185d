package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpstream("user.info", ResultSuccess, time.Second)
		m.SetBreakerState(2)
		m.IncSync(ResultFailure)
		m.ObserveBatch(ResultSuccess, BatchCounts{Succeeded: 1}, time.Second)
		m.IncNotification("inactivity", ResultSuccess)
		m.IncProfileCache(ResultHit)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_ObserveBatch(t *testing.T) {
	m := New()
	m.ObserveBatch(ResultSuccess, BatchCounts{Succeeded: 3, Failed: 1, Inactive: 2, Notified: 1, NotifyFailed: 1}, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchRuns.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchStudents.WithLabelValues("synced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchStudents.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchStudents.WithLabelValues("inactive")))
}

func TestMetrics_SkippedBatchOnlyCountsRun(t *testing.T) {
	m := New()
	m.ObserveBatch(ResultSkipped, BatchCounts{Succeeded: 5}, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchRuns.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.batchStudents.WithLabelValues("synced")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveUpstream("user.status", ResultSuccess, 150*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cfhub_upstream_requests_total{endpoint="user.status",result="success"} 1`)
}
