package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" || len(req.Input) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3]}]}`)
	}))
	defer server.Close()

	client, err := NewEmbeddingClient(Config{Provider: "openai", Model: "text-embedding-3-small", APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	vectors, err := client.Embed(context.Background(), []string{"where is my parcel"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 3 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
}

func TestEmbedRequiresInputs(t *testing.T) {
	client, err := NewEmbeddingClient(Config{Model: "m"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Embed(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty inputs")
	}
}

func TestNewEmbeddingClientRequiresModel(t *testing.T) {
	if _, err := NewEmbeddingClient(Config{}); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestEmbedRestoresInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`)
	}))
	defer server.Close()

	client, err := NewEmbeddingClient(Config{Provider: "ollama", Model: "nomic-embed-text", APIKey: "secret", APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Fatalf("expected input order, got %v", vectors)
	}
}

func TestEmbedRejectsMismatchedDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[1,1]},{"index":1,"embedding":[1]}]}`)
	}))
	defer server.Close()

	client, err := NewEmbeddingClient(Config{Model: "m", APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestNewEmbeddingClientRejectsUnsupportedProvider(t *testing.T) {
	if _, err := NewEmbeddingClient(Config{Provider: "anthropic", Model: "m"}); err == nil {
		t.Fatal("expected error for a provider without an embeddings API")
	}
	client, err := NewEmbeddingClient(Config{Provider: "ollama", Model: "m"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := client.(*EmbeddingProvider).endpoint; got != defaultOllamaURL+"/embeddings" {
		t.Fatalf("unexpected ollama endpoint %s", got)
	}
}
