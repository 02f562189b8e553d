package model

import "strings"

// RetrievedChunk is one knowledge passage. Score is source-local until
// fusion and holds the fused score afterwards.
type RetrievedChunk struct {
	DocID  string  `json:"docId"`
	Title  string  `json:"title"`
	Page   int     `json:"page"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
	Global bool    `json:"global,omitempty"`
}

// IsGlobal reports whether the chunk belongs to the shared corpus rather
// than the caller's tenant.
func (c RetrievedChunk) IsGlobal() bool {
	return c.Global || strings.HasPrefix(strings.ToUpper(c.DocID), "GLOBAL")
}
