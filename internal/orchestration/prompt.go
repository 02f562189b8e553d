package orchestration

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/llm"
)

const SystemPrompt = "You are the NetCourier enterprise assistant. Provide concise, factual answers and cite sources using the format [Title · p.X]. Never fabricate information."

// buildMessages renders the system prompt and the user message carrying the
// classification, workflow context, retrieved knowledge and request.
func buildMessages(req model.ChatRequest, queryType QueryType, chunks []model.RetrievedChunk, wf model.WorkflowResult) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation classification: %s\n", queryType)

	if ctx := workflowContext(wf); ctx != "" {
		fmt.Fprintf(&b, "Workflow context: %s\n", ctx)
	}

	if len(chunks) > 0 {
		b.WriteString("Retrieved knowledge:\n")
		for i, chunk := range chunks {
			fmt.Fprintf(&b, "%d. %s (reference: %s)\n", i+1, collapse(chunk.Text, contextLimit), Reference(chunk))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No retrieval context was available for this turn.\n")
	}

	b.WriteString("User request:\n")
	b.WriteString(userPrompt(req, wf))
	b.WriteString("\n\nRespond with factual guidance. If you reference retrieved knowledge, cite it using the format [Title · p.X].")
	b.WriteString(" Provide a concise summary at the end under the heading 'Summary'.")

	return []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func userPrompt(req model.ChatRequest, wf model.WorkflowResult) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.LatestUserContent()))
	if guidance := strings.TrimSpace(wf.ResponseMessage); guidance != "" {
		b.WriteString("\n\nWorkflow guidance: ")
		b.WriteString(guidance)
	}
	b.WriteString("\n\nReturn a final answer with numbered recommendations if multiple actions are required.")
	return b.String()
}

type workflowPromptContext struct {
	WorkflowID string                `json:"workflowId"`
	State      string                `json:"state"`
	Slots      map[string]any        `json:"slots"`
	ToolName   string                `json:"toolName,omitempty"`
	ToolResult *model.ToolCallResult `json:"toolResult,omitempty"`
}

func workflowContext(wf model.WorkflowResult) string {
	if wf.WorkflowID == "" && wf.State == "" {
		return ""
	}
	raw, err := json.Marshal(workflowPromptContext{
		WorkflowID: wf.WorkflowID,
		State:      wf.State,
		Slots:      wf.Slots,
		ToolName:   wf.ToolToInvoke,
		ToolResult: wf.ToolResult,
	})
	if err != nil {
		return fmt.Sprintf("%v", wf.Slots)
	}
	return string(raw)
}
