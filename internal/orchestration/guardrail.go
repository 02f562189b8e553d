package orchestration

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/llm"
)

// Guardrail actions.
const (
	GuardrailAllow     = "ALLOW"
	GuardrailTruncated = "TRUNCATED"
	GuardrailBlocked   = "BLOCKED"
	GuardrailError     = "ERROR"
)

const (
	// FallbackMessage replaces the answer when the LLM cannot be reached.
	FallbackMessage = "I'm having trouble reaching the AI assistant right now. Please try again in a moment or contact a NetCourier agent."
	// UnknownMessage replaces the answer when a knowledge question has no
	// supporting documents.
	UnknownMessage = "I don't know that yet. You can upload a document or try re-phrasing your question."
)

var upper = cases.Upper(language.Und)

// Answer is the guarded outcome of one LLM call.
type Answer struct {
	Text            string
	Citations       []model.Citation
	GuardrailAction string
}

// MapFinishReason converts a provider finish reason into a guardrail action.
func MapFinishReason(reason string) string {
	switch reason {
	case "", llm.FinishStop:
		return GuardrailAllow
	case llm.FinishLength:
		return GuardrailTruncated
	case llm.FinishContentFilter:
		return GuardrailBlocked
	default:
		return upper.String(reason)
	}
}

// ResolveGuardrail applies context truncation on top of the LLM's verdict.
// Truncation wins unless the content was blocked.
func ResolveGuardrail(action string, contextTruncated bool) string {
	if contextTruncated && action != GuardrailBlocked {
		return GuardrailTruncated
	}
	return action
}

// IsRAGIntent reports whether an intent belongs to the knowledge family.
func IsRAGIntent(intent string) bool {
	return strings.HasPrefix(upper.String(intent), "RAG")
}

// GuardKnowledge replaces the answer with UnknownMessage and drops citations
// when a knowledge answer has no supporting chunks.
func GuardKnowledge(answer Answer, knowledge bool, supported bool) Answer {
	if !knowledge || supported {
		return answer
	}
	answer.Text = UnknownMessage
	answer.Citations = []model.Citation{}
	if answer.GuardrailAction == "" {
		answer.GuardrailAction = GuardrailAllow
	}
	return answer
}
