package model

import (
	"fmt"
	"strings"
)

// ChatSubmission is the widget payload: one message plus the caller context.
type ChatSubmission struct {
	SessionID string            `json:"sessionId" binding:"required"`
	Message   string            `json:"message" binding:"required"`
	Context   SubmissionContext `json:"context" binding:"required"`
}

// SubmissionContext identifies the caller of a ChatSubmission.
type SubmissionContext struct {
	TenantID string   `json:"tenantId"`
	UserID   string   `json:"userId"`
	UI       string   `json:"ui"`
	Locale   string   `json:"locale"`
	Roles    []string `json:"roles"`
}

// ToRequest converts a submission into a single-turn ChatRequest. The UI
// surface doubles as a role so portal callers can reach portal tools.
func (s ChatSubmission) ToRequest() (ChatRequest, error) {
	if strings.TrimSpace(s.SessionID) == "" || strings.TrimSpace(s.Message) == "" {
		return ChatRequest{}, fmt.Errorf("%w: sessionId and message are required", ErrInvalidRequest)
	}
	roles := mergeRoles(s.Context.Roles, s.Context.UI)
	req := ChatRequest{
		ConversationID: s.SessionID,
		TenantID:       s.Context.TenantID,
		UserID:         s.Context.UserID,
		Turns:          []Turn{{Role: RoleUser, Content: s.Message}},
		Context: &RequestContext{
			Locale: s.Context.Locale,
			Roles:  roles,
			UI:     s.Context.UI,
		},
	}
	return req, nil
}

// mergeRoles de-duplicates roles case-insensitively, keeping first spelling.
func mergeRoles(roles []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(roles)+len(extra))
	var out []string
	for _, role := range append(append([]string{}, roles...), extra...) {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		key := strings.ToUpper(role)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, role)
	}
	return out
}
