package model

import (
	"errors"
	"maps"
	"time"
)

// WorkflowResult is the outcome of one workflow step. It is a value: the
// With* methods return modified copies.
type WorkflowResult struct {
	WorkflowID      string          `json:"workflowId"`
	State           string          `json:"state"`
	Slots           map[string]any  `json:"slots"`
	ToolToInvoke    string          `json:"toolToInvoke,omitempty"`
	ResponseMessage string          `json:"responseMessage"`
	ToolResult      *ToolCallResult `json:"toolResult,omitempty"`
}

// HasTool reports whether the workflow wants a tool invoked.
func (w WorkflowResult) HasTool() bool {
	return w.ToolToInvoke != ""
}

// SlotString returns a slot as a string, or "" when absent.
func (w WorkflowResult) SlotString(key string) string {
	if v, ok := w.Slots[key].(string); ok {
		return v
	}
	return ""
}

// WithToolResult returns a copy carrying the tool outcome.
func (w WorkflowResult) WithToolResult(result ToolCallResult) WorkflowResult {
	out := w.clone()
	out.ToolResult = &result
	return out
}

// WithResponse returns a copy with a new response message.
func (w WorkflowResult) WithResponse(response string) WorkflowResult {
	out := w.clone()
	out.ResponseMessage = response
	return out
}

func (w WorkflowResult) clone() WorkflowResult {
	out := w
	out.Slots = maps.Clone(w.Slots)
	if w.ToolResult != nil {
		tr := *w.ToolResult
		out.ToolResult = &tr
	}
	return out
}

// ErrWorkflowStateNotFound is returned by state stores when a conversation
// has no snapshot for a workflow yet.
var ErrWorkflowStateNotFound = errors.New("workflow state not found")

// WorkflowState is the durable checkpoint of one workflow, keyed by
// (conversation id, workflow id).
type WorkflowState struct {
	State        string         `json:"state"`
	Slots        map[string]any `json:"slots"`
	LastResponse string         `json:"lastResponse,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Snapshot returns the checkpoint for this result.
func (w WorkflowResult) Snapshot() WorkflowState {
	return WorkflowState{
		State:        w.State,
		Slots:        maps.Clone(w.Slots),
		LastResponse: w.ResponseMessage,
		ToolName:     w.ToolToInvoke,
		UpdatedAt:    time.Now().UTC(),
	}
}
