// Package memory persists conversation turns, assistant replies and
// workflow checkpoints.
package memory

import (
	"context"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/workflow"
)

// ErrWorkflowStateNotFound is returned when a conversation has no
// checkpoint for the requested workflow.
var ErrWorkflowStateNotFound = model.ErrWorkflowStateNotFound

// Service is the conversation-scoped durable memory. Conversations are
// owned by a tenant; the same conversation id under another tenant is a
// different conversation. It also satisfies workflow.StateStore.
type Service interface {
	AppendTurns(ctx context.Context, req model.ChatRequest) error
	StoreAssistantMessage(ctx context.Context, req model.ChatRequest, msg model.ChatMessage, wf model.WorkflowResult) error
	LoadWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string) (model.WorkflowState, error)
	SaveWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string, state model.WorkflowState) error
	History(ctx context.Context, tenantID, conversationID string) ([]model.ChatMessage, error)
}

var (
	_ workflow.StateStore = Service(nil)
	_ Service             = (*PostgresStore)(nil)
	_ Service             = (*InMemoryStore)(nil)
	_ Service             = (*CachedStore)(nil)
)

// persistsWorkflow reports whether an assistant reply should checkpoint its
// workflow. RESPOND turns belong to no workflow.
func persistsWorkflow(wf model.WorkflowResult) bool {
	return wf.WorkflowID != "" && wf.State != string(workflow.StateRespond)
}
