package orchestration

import (
	"fmt"
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
)

const (
	DefaultMaxCitations = 5
	snippetLimit        = 220
	contextLimit        = 600
)

// BuildCitations cites the first limit chunks.
func BuildCitations(chunks []model.RetrievedChunk, limit int) []model.Citation {
	citations := make([]model.Citation, 0, min(limit, len(chunks)))
	for i, chunk := range chunks {
		if i >= limit {
			break
		}
		citations = append(citations, model.Citation{
			DocID:     chunk.DocID,
			Title:     chunk.Title,
			Page:      chunk.Page,
			Snippet:   collapse(chunk.Text, snippetLimit),
			Reference: Reference(chunk),
		})
	}
	return citations
}

// Reference renders the "Title · p.N" label used in citations and prompts.
func Reference(chunk model.RetrievedChunk) string {
	title := strings.TrimSpace(chunk.Title)
	if title == "" {
		title = "Document"
	}
	return fmt.Sprintf("%s · p.%d", title, chunk.Page)
}

// collapse folds whitespace runs and ellipsises past limit characters.
func collapse(text string, limit int) string {
	folded := strings.Join(strings.Fields(text), " ")
	runes := []rune(folded)
	if len(runes) <= limit {
		return folded
	}
	return string(runes[:limit-3]) + "..."
}
