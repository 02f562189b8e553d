package model

import (
	"time"

	"github.com/google/uuid"
)

// Citation points the reader at the passage an answer relied on.
type Citation struct {
	DocID     string `json:"docId"`
	Title     string `json:"title"`
	Page      int    `json:"page"`
	Snippet   string `json:"snippet"`
	Reference string `json:"reference"`
}

// ChatMessage is a persisted or returned message.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Streaming bool      `json:"streaming"`
}

// NewChatMessage stamps a message with a fresh id and the current time.
func NewChatMessage(role Role, content string, streaming bool) ChatMessage {
	return ChatMessage{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Streaming: streaming,
	}
}

// RetrievalSummary reports what the retrieval stage produced.
type RetrievalSummary struct {
	Intent string           `json:"intent"`
	Chunks []RetrievedChunk `json:"chunks"`
}

// WorkflowSummary reports the workflow state after the turn.
type WorkflowSummary struct {
	WorkflowID string          `json:"workflowId"`
	State      string          `json:"state"`
	Slots      map[string]any  `json:"slots"`
	ToolResult *ToolCallResult `json:"toolResult,omitempty"`
}

// ChatResponse is the non-streaming turn result.
type ChatResponse struct {
	ConversationID  string           `json:"conversationId"`
	TenantID        string           `json:"tenantId"`
	Messages        []ChatMessage    `json:"messages"`
	Retrieval       RetrievalSummary `json:"retrieval"`
	Workflow        WorkflowSummary  `json:"workflow"`
	Citations       []Citation       `json:"citations"`
	GuardrailAction string           `json:"guardrailAction"`
}
