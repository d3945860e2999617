package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type breaker struct {
	name string
	open bool
}

func (b breaker) Name() string { return b.name }
func (b breaker) IsOpen() bool { return b.open }

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	if status := hc.CheckHealth(); status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", status.Status)
	}

	hc.AddCheck("circuits", CircuitBreakerHealthCheck(breaker{name: "bluesky", open: true}))
	if status := hc.CheckHealth(); status.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %q", status.Status)
	}

	hc.AddCheck("weird", func() CheckResult { return CheckResult{Status: "sideways"} })
	if status := hc.CheckHealth(); status.Status != StatusUnhealthy {
		t.Fatalf("unknown status should count as unhealthy, got %q", status.Status)
	}
}

func TestPingHealthCheck(t *testing.T) {
	if res := PingHealthCheck("redis", pinger{})(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	if res := PingHealthCheck("redis", pinger{err: errors.New("down")})(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %+v", res)
	}
	if res := PingHealthCheck("redis", nil)(); res.Message != "redis client is nil" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestCircuitBreakerHealthCheckListsOpenBreakers(t *testing.T) {
	res := CircuitBreakerHealthCheck(
		breaker{name: "mastodon", open: true},
		breaker{name: "bluesky", open: true},
		breaker{name: "other"},
	)()
	if res.Message != "open circuits: bluesky, mastodon" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestHealthHandlerReturns503WhenUnhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("config", ConfigurationHealthCheck(map[string]string{"PORT": ""}))

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
