package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unknownIntent = "UNKNOWN"

var (
	citationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "citations_total",
			Help:      "Knowledge answers by tenant and whether they carried citations",
		},
		[]string{"tenant", "present"},
	)

	guardrailActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "guardrail_actions_total",
			Help:      "Final answers whose guardrail action was not ALLOW",
		},
		[]string{"action"},
	)

	ttftSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatbot",
			Name:      "ttft_seconds",
			Help:      "Time from THINKING to the first answer text of a streamed turn",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30, 60},
		},
		[]string{"tenant", "intent"},
	)
)

// ttftTimer observes time-to-first-token once per turn.
type ttftTimer struct {
	tenant   string
	intent   string
	started  time.Time
	observed bool
}

func newTTFTTimer(tenant string) *ttftTimer {
	return &ttftTimer{tenant: tenant, started: time.Now()}
}

func (t *ttftTimer) observe() {
	if t.observed {
		return
	}
	t.observed = true
	intent := t.intent
	if intent == "" {
		intent = unknownIntent
	}
	ttftSeconds.WithLabelValues(t.tenant, intent).Observe(time.Since(t.started).Seconds())
}
