package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg, Config{ServiceName: "toolhub", Environment: "test"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/tool/:toolId", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/tool/a", "/tool/b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/tool/:toolId", http.MethodGet, "200"))
	assert.Equal(t, 2.0, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newHTTPMetrics(reg, Config{})
	require.NoError(t, err)
	second, err := newHTTPMetrics(reg, Config{})
	require.NoError(t, err)
	assert.Same(t, first.requests, second.requests)
}
