package model

// EventType tags a streamed frame.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventToolResult EventType = "tool_result"
	EventPartial    EventType = "partial"
	EventFinal      EventType = "final"
	EventError      EventType = "error"
)

// Event is one frame of a streamed turn. FINAL is always the last frame.
type Event struct {
	Type EventType `json:"type"`
	Text string    `json:"text,omitempty"`
	Data any       `json:"data,omitempty"`
}

// ToolResultData is the payload of a tool_result frame.
type ToolResultData struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
}

// FinalData is the payload of the final frame.
type FinalData struct {
	Intent          string     `json:"intent"`
	Citations       []Citation `json:"citations"`
	GuardrailAction string     `json:"guardrailAction"`
}
