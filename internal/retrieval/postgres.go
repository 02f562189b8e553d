package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/llm"
)

// Rows with an empty roles array are visible to every caller.
const chunkFilter = `tenant_id = ANY($2)
		  AND (cardinality(roles) = 0 OR roles && $3)`

// VectorRetriever is the dense retriever: it embeds the query and ranks
// chunks by cosine similarity in pgvector.
type VectorRetriever struct {
	db           *sql.DB
	embedder     llm.EmbeddingClient
	globalTenant string
}

func NewVectorRetriever(db *sql.DB, embedder llm.EmbeddingClient, globalTenant string) *VectorRetriever {
	return &VectorRetriever{db: db, embedder: embedder, globalTenant: globalTenant}
}

func (r *VectorRetriever) Search(ctx context.Context, q Query) ([]model.RetrievedChunk, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if r.embedder == nil {
		return nil, errors.New("embedding client is not configured")
	}
	vectors, err := r.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("embedding is empty")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT doc_id,
			tenant_id,
			title,
			page,
			chunk_text,
			1 - (embedding <=> $1) AS score
		FROM chatbot.knowledge_chunks
		WHERE embedding IS NOT NULL
		  AND `+chunkFilter+`
		ORDER BY embedding <=> $1
		LIMIT $4
	`, pgvector.NewVector(vectors[0]), pq.Array(tenants(q.TenantID, r.globalTenant)), pq.Array(normalizeRoles(q.Roles)), topK(q))
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return scanChunks(rows, SourceDense, r.globalTenant)
}

// FullTextRetriever is the sparse retriever backed by Postgres full-text
// search over title and chunk text.
type FullTextRetriever struct {
	db           *sql.DB
	globalTenant string
}

func NewFullTextRetriever(db *sql.DB, globalTenant string) *FullTextRetriever {
	return &FullTextRetriever{db: db, globalTenant: globalTenant}
}

func (r *FullTextRetriever) Search(ctx context.Context, q Query) ([]model.RetrievedChunk, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT doc_id,
			tenant_id,
			title,
			page,
			chunk_text,
			ts_rank_cd(tsv, websearch_to_tsquery('simple', $1)) AS score
		FROM chatbot.knowledge_chunks
		WHERE tsv @@ websearch_to_tsquery('simple', $1)
		  AND `+chunkFilter+`
		ORDER BY score DESC, doc_id
		LIMIT $4
	`, q.Text, pq.Array(tenants(q.TenantID, r.globalTenant)), pq.Array(normalizeRoles(q.Roles)), topK(q))
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	return scanChunks(rows, SourceSparse, r.globalTenant)
}

func scanChunks(rows *sql.Rows, source, globalTenant string) ([]model.RetrievedChunk, error) {
	defer rows.Close()

	var chunks []model.RetrievedChunk
	for rows.Next() {
		var chunk model.RetrievedChunk
		var tenantID string
		if err := rows.Scan(&chunk.DocID, &tenantID, &chunk.Title, &chunk.Page, &chunk.Text, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan %s chunk: %w", source, err)
		}
		chunk.Source = source
		chunk.Global = globalTenant != "" && tenantID == globalTenant
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s chunks: %w", source, err)
	}
	return chunks, nil
}

func validateQuery(q Query) error {
	if q.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("query text is required")
	}
	return nil
}

func tenants(tenantID, globalTenant string) []string {
	if globalTenant == "" || globalTenant == tenantID {
		return []string{tenantID}
	}
	return []string{tenantID, globalTenant}
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			out = append(out, strings.ToUpper(role))
		}
	}
	return out
}

func topK(q Query) int {
	if q.TopK <= 0 {
		return DefaultTopK
	}
	return q.TopK
}
