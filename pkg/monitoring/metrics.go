package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat turns stream for up to the LLM deadline, so the latency buckets reach
// past the default 10s.
var requestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// MetricsCollector holds the HTTP metrics of one service. Streaming chat
// responses (NDJSON and SSE) are labelled separately from plain JSON so a
// long stream does not skew the request latency of the sync endpoints.
type MetricsCollector struct {
	serviceName string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	inFlight            *prometheus.GaugeVec
	serviceInfo         *prometheus.GaugeVec
}

func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	return NewMetricsCollectorWithRegisterer(prometheus.DefaultRegisterer, serviceName, version, commit)
}

// NewMetricsCollectorWithRegisterer registers the HTTP metrics on reg under
// the sanitized service name as namespace.
func NewMetricsCollectorWithRegisterer(reg prometheus.Registerer, serviceName, version, commit string) *MetricsCollector {
	mc := &MetricsCollector{serviceName: strings.ReplaceAll(serviceName, "-", "_")}

	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mc.serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, status and whether the response streamed",
		},
		[]string{"method", "endpoint", "status", "streaming"},
	)
	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mc.serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration; for streams this is the full stream lifetime",
			Buckets:   requestDurationBuckets,
		},
		[]string{"method", "endpoint", "streaming"},
	)
	mc.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: mc.serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served, by route",
		},
		[]string{"endpoint"},
	)
	mc.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: mc.serviceName,
			Name:      "service_info",
			Help:      "Build information of the running binary",
		},
		[]string{"version", "commit"},
	)

	reg.MustRegister(mc.httpRequestsTotal, mc.httpRequestDuration, mc.inFlight, mc.serviceInfo)
	mc.serviceInfo.WithLabelValues(version, commit).Set(1)
	return mc
}

// MetricsMiddleware records request counts, latency and in-flight requests.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		gauge := mc.inFlight.WithLabelValues(endpoint)
		gauge.Inc()
		defer gauge.Dec()

		c.Next()

		streaming := strconv.FormatBool(isStreaming(c.Writer.Header().Get("Content-Type")))
		status := strconv.Itoa(c.Writer.Status())
		mc.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status, streaming).Inc()
		mc.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint, streaming).Observe(time.Since(start).Seconds())
	}
}

func isStreaming(contentType string) bool {
	return strings.HasPrefix(contentType, "application/x-ndjson") || strings.HasPrefix(contentType, "text/event-stream")
}

// Handler returns the Prometheus metrics HTTP handler
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
