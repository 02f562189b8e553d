package workflow

import (
	"regexp"
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
)

var (
	jobIDPattern  = regexp.MustCompile(`NC\d{6,}`)
	windowPattern = regexp.MustCompile(`(?i)tomorrow|today|next\s+week|\d{4}-\d{2}-\d{2}`)
)

type extractor func(model.ChatRequest) (string, bool)

// extractJobID returns the first job number found scanning turns in order.
func extractJobID(req model.ChatRequest) (string, bool) {
	for _, turn := range req.Turns {
		if match := jobIDPattern.FindString(turn.Content); match != "" {
			return match, true
		}
	}
	return "", false
}

// extractWindow returns the first delivery window found, lowercased.
func extractWindow(req model.ChatRequest) (string, bool) {
	for _, turn := range req.Turns {
		if match := windowPattern.FindString(turn.Content); match != "" {
			return strings.ToLower(match), true
		}
	}
	return "", false
}

// latestUserMessage returns the newest non-blank USER turn.
func latestUserMessage(req model.ChatRequest) (string, bool) {
	for i := len(req.Turns) - 1; i >= 0; i-- {
		turn := req.Turns[i]
		if turn.Role == model.RoleUser && strings.TrimSpace(turn.Content) != "" {
			return turn.Content, true
		}
	}
	return "", false
}
