// Package model holds the value types passed between the stages of one
// chat turn: the request, retrieved chunks, workflow results, tool
// outcomes, citations and the streamed events.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned when a turn is missing required identifiers.
var ErrInvalidRequest = errors.New("invalid chat request")

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RequestContext carries caller attributes that shape retrieval and tool
// authorization.
type RequestContext struct {
	Locale string   `json:"locale,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	UI     string   `json:"ui,omitempty"`
}

// ChatRequest is the input to a single turn.
type ChatRequest struct {
	ConversationID string          `json:"conversationId"`
	TenantID       string          `json:"tenantId"`
	UserID         string          `json:"userId"`
	Turns          []Turn          `json:"turns"`
	Context        *RequestContext `json:"context,omitempty"`
}

// Validate rejects requests missing the identifiers every stage relies on.
func (r ChatRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.ConversationID) == "":
		return fmt.Errorf("%w: conversationId is required", ErrInvalidRequest)
	case strings.TrimSpace(r.TenantID) == "":
		return fmt.Errorf("%w: tenantId is required", ErrInvalidRequest)
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	case r.Turns == nil:
		return fmt.Errorf("%w: turns are required", ErrInvalidRequest)
	}
	return nil
}

// LatestUserContent returns the most recent USER utterance, falling back to
// the last turn of any role.
func (r ChatRequest) LatestUserContent() string {
	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].Role == RoleUser {
			return r.Turns[i].Content
		}
	}
	if len(r.Turns) > 0 {
		return r.Turns[len(r.Turns)-1].Content
	}
	return ""
}

// Roles returns the caller roles, or nil when no context was supplied.
func (r ChatRequest) Roles() []string {
	if r.Context == nil {
		return nil
	}
	return r.Context.Roles
}

// UI returns the calling surface, or "" when unknown.
func (r ChatRequest) UI() string {
	if r.Context == nil {
		return ""
	}
	return r.Context.UI
}

// WithIdentity returns a copy carrying an authenticated identity. Blank
// values keep what the request claimed. Once a tenant or user is
// authenticated, the authenticated roles are the only roles: claimed roles
// and the UI surface are discarded, even when the token carries none.
func (r ChatRequest) WithIdentity(tenantID, userID string, roles []string) ChatRequest {
	if tenantID == "" && userID == "" {
		return r
	}
	if tenantID != "" {
		r.TenantID = tenantID
	}
	if userID != "" {
		r.UserID = userID
	}
	var rc RequestContext
	if r.Context != nil {
		rc = *r.Context
	}
	rc.Roles = mergeRoles(roles)
	r.Context = &rc
	return r
}
