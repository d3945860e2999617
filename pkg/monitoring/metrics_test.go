package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry("thread-reader", "v1", "abc", reg, reg)
	sm := mc.CreateSessionMetrics()
	sm.Started.WithLabelValues("mastodon", "ok").Inc()

	r := gin.New()
	r.Use(mc.MetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", mc.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{
		`thread_reader_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`,
		`thread_reader_sessions_started_total{platform="mastodon",status="ok"} 1`,
		`thread_reader_service_info{commit="abc",version="v1"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
