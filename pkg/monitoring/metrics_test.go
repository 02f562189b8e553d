package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollectorWithRegisterer(prometheus.NewRegistry(), "chat-bot", "v1", "abc")
	if mc.serviceName != "chat_bot" {
		t.Fatalf("expected sanitized service name, got %s", mc.serviceName)
	}

	r := gin.New()
	r.Use(mc.MetricsMiddleware())
	r.POST("/api/chat/sync", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.POST("/api/chat", func(c *gin.Context) {
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
		_, _ = c.Writer.Write([]byte("{\"type\":\"final\"}\n"))
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat/sync", nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if got := testutil.ToFloat64(mc.httpRequestsTotal.WithLabelValues("POST", "/api/chat/sync", "200", "false")); got != 2 {
		t.Fatalf("expected 2 sync requests, got %v", got)
	}
	if got := testutil.ToFloat64(mc.httpRequestsTotal.WithLabelValues("POST", "/api/chat", "200", "true")); got != 1 {
		t.Fatalf("expected the NDJSON request labelled as streaming, got %v", got)
	}
	if got := testutil.ToFloat64(mc.httpRequestsTotal.WithLabelValues("GET", "unknown", "404", "false")); got != 1 {
		t.Fatalf("expected unmatched route under unknown, got %v", got)
	}
	if got := testutil.ToFloat64(mc.inFlight.WithLabelValues("/api/chat")); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}

func TestIsStreaming(t *testing.T) {
	for ct, want := range map[string]bool{
		"application/x-ndjson":            true,
		"text/event-stream":               true,
		"application/json; charset=utf-8": false,
		"":                                false,
	} {
		if got := isStreaming(ct); got != want {
			t.Errorf("%q: expected %v, got %v", ct, want, got)
		}
	}
}
