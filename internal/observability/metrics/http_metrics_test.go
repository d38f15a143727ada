package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newHTTPMetrics(prometheus.NewRegistry(), Config{})

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/health", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
