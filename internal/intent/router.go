// Package intent maps the latest user utterance to a symbolic intent label.
package intent

import (
	"context"
	"regexp"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

// Intent labels understood by the workflow engine and tool registry.
const (
	RescheduleDelivery = "RESCHEDULE_DELIVERY"
	TrackJob           = "TRACK_JOB"
	CreateTicket       = "CREATE_TICKET"
	RAGFAQ             = "RAG_FAQ"
)

const (
	DefaultConfidenceThreshold = 0.55
	DefaultFallback            = RAGFAQ
)

// Rule maps a pattern to an intent. Rules are evaluated in order.
type Rule struct {
	Pattern *regexp.Regexp
	Intent  string
}

// DefaultRules are the built-in keyword rules; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: regexp.MustCompile(`(?i)reschedule|rebook`), Intent: RescheduleDelivery},
		{Pattern: regexp.MustCompile(`(?i)track|status|NC\d{6,}`), Intent: TrackJob},
		{Pattern: regexp.MustCompile(`(?i)ticket|issue`), Intent: CreateTicket},
	}
}

// Config controls the router.
type Config struct {
	Fallback            string
	LLMEnabled          bool
	ConfidenceThreshold float64
	Rules               []Rule
}

// Router is the rule-first, LLM-second intent router.
type Router struct {
	rules      []Rule
	fallback   string
	classifier Classifier
	threshold  float64
	candidates []string
	logger     logging.Logger
}

// NewRouter builds a router. classifier may be nil, and is ignored unless
// cfg.LLMEnabled is set.
func NewRouter(cfg Config, classifier Classifier, logger logging.Logger) *Router {
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	if !cfg.LLMEnabled {
		classifier = nil
	}

	candidates := make([]string, 0, len(cfg.Rules)+1)
	seen := make(map[string]bool)
	for _, intent := range append(rulesIntents(cfg.Rules), cfg.Fallback) {
		if !seen[intent] {
			seen[intent] = true
			candidates = append(candidates, intent)
		}
	}

	return &Router{
		rules:      cfg.Rules,
		fallback:   cfg.Fallback,
		classifier: classifier,
		threshold:  cfg.ConfidenceThreshold,
		candidates: candidates,
		logger:     logger,
	}
}

// Candidates returns the closed label set offered to the classifier.
func (r *Router) Candidates() []string {
	return append([]string(nil), r.candidates...)
}

// Route classifies the request. It never fails: classifier problems fall
// through to the configured fallback.
func (r *Router) Route(ctx context.Context, req model.ChatRequest) string {
	if len(req.Turns) == 0 {
		routesTotal.WithLabelValues(methodFallback).Inc()
		return r.fallback
	}

	latest := req.LatestUserContent()
	for _, rule := range r.rules {
		if rule.Pattern.MatchString(latest) {
			routesTotal.WithLabelValues(methodRule).Inc()
			return rule.Intent
		}
	}

	if r.classifier != nil {
		result, ok := r.classifier.Classify(ctx, req, r.candidates)
		switch {
		case ok && result.Confidence >= r.threshold:
			r.logger.WithFields(reqctx.LogFields(ctx)).WithFields(logging.Fields{
				"intent":     result.Intent,
				"confidence": result.Confidence,
			}).Debug("LLM classified intent")
			routesTotal.WithLabelValues(methodLLM).Inc()
			return result.Intent
		case ok:
			r.logger.WithFields(reqctx.LogFields(ctx)).WithFields(logging.Fields{
				"intent":     result.Intent,
				"confidence": result.Confidence,
				"threshold":  r.threshold,
			}).Debug("LLM classification below threshold")
		}
	}

	routesTotal.WithLabelValues(methodFallback).Inc()
	return r.fallback
}

func rulesIntents(rules []Rule) []string {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.Intent)
	}
	return out
}
