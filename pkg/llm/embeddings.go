package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultEmbeddingTimeout = 30 * time.Second

// EmbeddingClient turns texts into dense vectors. The dense retriever embeds
// one query per turn.
type EmbeddingClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// EmbeddingProvider speaks the OpenAI /embeddings API. Ollama is reached
// through its OpenAI-compatible /v1 surface, the same way ollama.go does for
// chat completions.
type EmbeddingProvider struct {
	upstream upstream
	endpoint string
	apiKey   string
	model    string
}

func NewEmbeddingClient(cfg Config) (EmbeddingClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	name := providerName(cfg, "openai")
	var base string
	switch name {
	case "openai":
		base = defaultOpenAIURL
	case "ollama":
		base = defaultOllamaURL
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", name)
	}
	if cfg.APIURL != "" {
		base = strings.TrimRight(cfg.APIURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbeddingTimeout
	}
	return &EmbeddingProvider{
		upstream: newUpstream("embeddings-"+name, timeout),
		endpoint: base + "/embeddings",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order. Every vector must
// have the same non-zero dimension.
func (p *EmbeddingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	payload, err := json.Marshal(embeddingRequest{Model: p.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	resp, err := p.upstream.postJSON(ctx, p.endpoint, payload, headers)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(decoded.Data))
	}
	sort.SliceStable(decoded.Data, func(i, j int) bool { return decoded.Data[i].Index < decoded.Data[j].Index })

	vectors := make([][]float32, len(decoded.Data))
	for i, entry := range decoded.Data {
		if len(entry.Embedding) == 0 || len(entry.Embedding) != len(decoded.Data[0].Embedding) {
			return nil, fmt.Errorf("embedding %d has dimension %d", i, len(entry.Embedding))
		}
		vectors[i] = entry.Embedding
	}
	return vectors, nil
}
