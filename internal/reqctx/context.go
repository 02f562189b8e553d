// Package reqctx carries the identity of the current turn through
// context.Context so deep callers (tool adapters, audit sinks, stores) can
// tag their logs and outbound calls without threading extra arguments.
package reqctx

import (
	"context"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/ctxkeys"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

type contextKey string

const (
	keyTenantID       contextKey = "chatbot_tenant_id"
	keyUserID         contextKey = "chatbot_user_id"
	keyRoles          contextKey = "chatbot_roles"
	keyConversationID contextKey = "chatbot_conversation_id"
)

func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTenantID, id)
}

func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(keyTenantID).(string); ok {
		return v
	}
	return ""
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserID).(string); ok {
		return v
	}
	return ""
}

func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, keyRoles, roles)
}

func GetRoles(ctx context.Context) []string {
	if v, ok := ctx.Value(keyRoles).([]string); ok {
		return v
	}
	return nil
}

func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyConversationID, id)
}

func GetConversationID(ctx context.Context) string {
	if v, ok := ctx.Value(keyConversationID).(string); ok {
		return v
	}
	return ""
}

// FromRequest stores the turn identity on ctx.
func FromRequest(ctx context.Context, req model.ChatRequest) context.Context {
	ctx = WithTenantID(ctx, req.TenantID)
	ctx = WithUserID(ctx, req.UserID)
	ctx = WithConversationID(ctx, req.ConversationID)
	return WithRoles(ctx, req.Roles())
}

// LogFields returns the identity fields present on ctx.
func LogFields(ctx context.Context) logging.Fields {
	fields := logging.Fields{}
	if v := ctxkeys.GetRequestID(ctx); v != "" {
		fields["request_id"] = v
	}
	if v := GetConversationID(ctx); v != "" {
		fields["conversation_id"] = v
	}
	if v := GetTenantID(ctx); v != "" {
		fields["tenant_id"] = v
	}
	if v := GetUserID(ctx); v != "" {
		fields["user_id"] = v
	}
	return fields
}
