package orchestration

import (
	"strings"
	"unicode/utf8"

	"github.com/Ahabibm4/chatbot/internal/model"
)

const DefaultMaxContextTokens = 2048

// TokenBudgetGuard bounds the retrieved context forwarded to the LLM.
type TokenBudgetGuard struct {
	maxTokens int
}

func NewTokenBudgetGuard(maxTokens int) TokenBudgetGuard {
	return TokenBudgetGuard{maxTokens: maxTokens}
}

// Enforce accepts chunks in order while they fit. The first chunk that
// does not fit ends the walk, even if later chunks are cheaper.
func (g TokenBudgetGuard) Enforce(chunks []model.RetrievedChunk) (accepted []model.RetrievedChunk, truncated bool) {
	budget := g.maxTokens
	for _, chunk := range chunks {
		cost := EstimateTokens(chunk.Text)
		if cost > budget {
			return accepted, true
		}
		budget -= cost
		accepted = append(accepted, chunk)
	}
	return accepted, false
}

// EstimateTokens approximates a token count as a quarter of the characters
// plus a fixed per-chunk overhead.
func EstimateTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return max(1, utf8.RuneCountInString(text)/4+16)
}
