package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAllowed = "allowed"
	outcomeDenied  = "denied"
)

var invocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "tool_invocations_total",
		Help:      "Tool invocations by policy outcome",
	},
	[]string{"outcome"},
)
