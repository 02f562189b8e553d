package orchestration

import (
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
)

// QueryType is the shape of the turn as presented to the LLM.
type QueryType string

const (
	QueryTool QueryType = "TOOL"
	QueryRAG  QueryType = "RAG"
	QueryFAQ  QueryType = "FAQ"
	QueryChat QueryType = "CHAT"
)

// ClassifyQuery picks TOOL when the workflow wants a tool, RAG when there
// is retrieved context, FAQ when the intent names one, and CHAT otherwise.
func ClassifyQuery(intent string, chunks []model.RetrievedChunk, wf model.WorkflowResult) QueryType {
	switch {
	case wf.HasTool():
		return QueryTool
	case len(chunks) > 0:
		return QueryRAG
	case strings.Contains(strings.ToLower(intent), "faq"):
		return QueryFAQ
	default:
		return QueryChat
	}
}
