package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "workflow_transitions_total",
			Help:      "Workflow transitions fired by workflow and event",
		},
		[]string{"workflow", "event"},
	)

	persistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "workflow_persist_failures_total",
			Help:      "Workflow checkpoints that could not be saved",
		},
	)
)
