package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var retrievalFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "retrieval_failures_total",
		Help:      "Retriever errors by source",
	},
	[]string{"source"},
)
