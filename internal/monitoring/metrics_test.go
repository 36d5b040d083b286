package monitoring

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMint(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordMint("success")
	m.RecordMint("success")
	m.RecordMint("upstream_error")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsMinted.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsMinted.WithLabelValues("upstream_error")))
}

func TestRecordSignal(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordSignal("responseStart")
	m.RecordSignal("responseStart")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Signals.WithLabelValues("responseStart")))
}

func TestRecordTraceEvent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordTraceEvent("trace-create")
	m.RecordTraceEvent("span-create")
	m.RecordTraceEvent("span-create")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TraceEvents.WithLabelValues("trace-create")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TraceEvents.WithLabelValues("span-create")))
}

func TestUptime(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	time.Sleep(time.Millisecond)
	assert.Greater(t, m.Uptime(), time.Duration(0))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "healthy"}) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
}
