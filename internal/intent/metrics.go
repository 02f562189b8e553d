package intent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	methodRule     = "rule"
	methodLLM      = "llm"
	methodFallback = "fallback"
)

var routesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "intent_routes_total",
		Help:      "Intent routing decisions by method",
	},
	[]string{"method"},
)
