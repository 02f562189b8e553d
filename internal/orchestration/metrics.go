package orchestration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeBlocking  = "blocking"
	modeStreaming = "streaming"

	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

var llmRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "llm_requests_total",
		Help:      "LLM calls by mode and outcome",
	},
	[]string{"mode", "outcome"},
)
