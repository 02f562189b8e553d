package llm

import (
	"context"
	"io"
	"strings"
)

// TemplateProvider answers without a model. It is used offline and when no
// provider is configured: the reply restates the prompt's retrieved knowledge
// so the rest of the pipeline (citations, guardrails, streaming) still runs.
type TemplateProvider struct{}

func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

func (p *TemplateProvider) Complete(_ context.Context, req Request) (Stream, error) {
	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}
	return &sliceStream{chunks: templateChunks(prompt)}, nil
}

func templateChunks(prompt string) []Chunk {
	var findings []string
	inKnowledge := false
	for _, line := range strings.Split(prompt, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Retrieved knowledge:"):
			inKnowledge = true
		case inKnowledge && trimmed == "":
			inKnowledge = false
		case inKnowledge:
			findings = append(findings, trimmed)
		}
	}

	var chunks []Chunk
	if len(findings) == 0 {
		chunks = append(chunks, Chunk{Content: "I could not find reference material for this request. A NetCourier agent can help if you need more detail."})
	} else {
		chunks = append(chunks, Chunk{Content: "Key findings:\n"})
		for _, finding := range findings {
			chunks = append(chunks, Chunk{Content: finding + "\n"})
		}
	}
	chunks[len(chunks)-1].FinishReason = FinishStop
	return chunks
}

type sliceStream struct {
	chunks []Chunk
	pos    int
}

func (s *sliceStream) Recv() (Chunk, error) {
	if s.pos >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error {
	return nil
}

// StreamOf returns a stream that yields chunks in order, then io.EOF.
func StreamOf(chunks ...Chunk) Stream {
	return &sliceStream{chunks: chunks}
}
