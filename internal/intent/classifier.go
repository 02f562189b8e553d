package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/llm"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const minClassifierTokens = 128

// Classification is the structured verdict of the LLM classifier.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Classifier picks one of the candidate intents. ok is false when no usable
// verdict was produced.
type Classifier interface {
	Classify(ctx context.Context, req model.ChatRequest, candidates []string) (Classification, bool)
}

// LLMClassifier asks an LLM for a JSON verdict.
type LLMClassifier struct {
	provider  llm.Provider
	maxTokens int
	logger    logging.Logger
}

// NewLLMClassifier returns a classifier that requests at least 128 tokens.
func NewLLMClassifier(provider llm.Provider, maxTokens int, logger logging.Logger) *LLMClassifier {
	return &LLMClassifier{
		provider:  provider,
		maxTokens: max(minClassifierTokens, maxTokens),
		logger:    logger,
	}
}

func (c *LLMClassifier) Classify(ctx context.Context, req model.ChatRequest, candidates []string) (Classification, bool) {
	if c.provider == nil || len(candidates) == 0 {
		return Classification{}, false
	}
	log := c.logger.WithFields(reqctx.LogFields(ctx))

	stream, err := c.provider.Complete(ctx, llm.Request{
		Messages:    classifierMessages(req, candidates),
		Temperature: 0,
		MaxTokens:   c.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		log.WithError(err).Warn("LLM intent classification failed")
		return Classification{}, false
	}
	completion, err := llm.Collect(stream)
	if err != nil {
		log.WithError(err).Warn("LLM intent classification stream failed")
		return Classification{}, false
	}

	result, err := parseClassification(completion.Text, candidates)
	if err != nil {
		log.WithError(err).Warn("LLM intent classification parsing failed")
		return Classification{}, false
	}
	return result, true
}

func classifierMessages(req model.ChatRequest, candidates []string) []llm.Message {
	system := "You are an intent classifier for the NetCourier assistant. Return a strict JSON object with keys intent, confidence, and reason." +
		" The intent value MUST be one of: " + strings.Join(candidates, ", ") +
		". Confidence must be between 0.0 and 1.0. Use the fallback intent when unsure."

	var b strings.Builder
	fmt.Fprintf(&b, "Tenant: %s\n", req.TenantID)
	if req.Context != nil {
		fmt.Fprintf(&b, "UI Surface: %s\n", req.Context.UI)
		if len(req.Context.Roles) > 0 {
			fmt.Fprintf(&b, "Roles: %s\n", strings.Join(req.Context.Roles, ", "))
		}
	}
	b.WriteString("Conversation:\n")
	for _, turn := range req.Turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, strings.TrimSpace(turn.Content))
	}

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}

// parseClassification accepts bare JSON or a ```json fenced block and maps
// the intent onto the candidate spelling.
func parseClassification(raw string, candidates []string) (Classification, error) {
	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") && len(content) >= 6 {
		content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
		content = strings.TrimSpace(strings.TrimPrefix(content, "json"))
	}

	var result Classification
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	upper := cases.Upper(language.Und)
	want := upper.String(strings.TrimSpace(result.Intent))
	for _, candidate := range candidates {
		if upper.String(candidate) == want {
			result.Intent = candidate
			return result, nil
		}
	}
	return Classification{}, fmt.Errorf("intent %q is not a candidate", result.Intent)
}
