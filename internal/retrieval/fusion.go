// Package retrieval merges dense and sparse knowledge search into one
// ranked list using weighted reciprocal rank fusion.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const (
	DefaultDenseWeight  = 0.6
	DefaultSparseWeight = 0.4
	DefaultLimit        = 5
	DefaultTopK         = 8

	SourceDense  = "dense"
	SourceSparse = "sparse"
)

// Query is what each retriever searches for.
type Query struct {
	Text     string
	TenantID string
	Roles    []string
	TopK     int
}

// Retriever returns chunks sorted by its own relevance score.
type Retriever interface {
	Search(ctx context.Context, q Query) ([]model.RetrievedChunk, error)
}

// Config tunes the fusion.
type Config struct {
	DenseWeight  float64
	SparseWeight float64
	Limit        int
	TopK         int
}

func (c Config) withDefaults() Config {
	if c.DenseWeight <= 0 {
		c.DenseWeight = DefaultDenseWeight
	}
	if c.SparseWeight <= 0 {
		c.SparseWeight = DefaultSparseWeight
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	return c
}

// HybridRetriever runs a dense and a sparse retriever and fuses their
// rankings. Either retriever may be nil.
type HybridRetriever struct {
	dense  Retriever
	sparse Retriever
	cfg    Config
	logger logging.Logger
}

func NewHybridRetriever(dense, sparse Retriever, cfg Config, logger logging.Logger) *HybridRetriever {
	return &HybridRetriever{
		dense:  dense,
		sparse: sparse,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Retrieve searches both sources concurrently. Source failures are logged
// and count as empty results; the call itself never fails.
func (h *HybridRetriever) Retrieve(ctx context.Context, req model.ChatRequest, intent string) []model.RetrievedChunk {
	text := strings.TrimSpace(req.LatestUserContent())
	if text == "" {
		return nil
	}
	q := Query{
		Text:     text,
		TenantID: req.TenantID,
		Roles:    req.Roles(),
		TopK:     h.cfg.TopK,
	}

	var dense, sparse []model.RetrievedChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense = h.search(gctx, h.dense, SourceDense, q, intent)
		return nil
	})
	g.Go(func() error {
		sparse = h.search(gctx, h.sparse, SourceSparse, q, intent)
		return nil
	})
	_ = g.Wait()

	fused := Fuse(dense, sparse, h.cfg.DenseWeight, h.cfg.SparseWeight, h.cfg.Limit)
	h.logger.WithFields(reqctx.LogFields(ctx)).WithFields(logging.Fields{
		"intent": intent,
		"dense":  len(dense),
		"sparse": len(sparse),
		"fused":  len(fused),
	}).Debug("Hybrid retrieval complete")
	return fused
}

func (h *HybridRetriever) search(ctx context.Context, r Retriever, source string, q Query, intent string) []model.RetrievedChunk {
	if r == nil {
		return nil
	}
	chunks, err := r.Search(ctx, q)
	if err != nil {
		retrievalFailures.WithLabelValues(source).Inc()
		h.logger.WithFields(reqctx.LogFields(ctx)).WithError(err).WithFields(logging.Fields{
			"source": source,
			"intent": intent,
		}).Warn("Retriever failed; continuing without its results")
		return nil
	}
	return chunks
}

type fusedEntry struct {
	chunk     model.RetrievedChunk
	score     float64
	bestScore float64
	global    bool
}

// Fuse merges two ranked lists with weighted reciprocal rank fusion. An
// entry at 1-based rank r contributes weight/r. Chunks are merged by DocID,
// keeping the body from the source with the higher raw score. Ties on the
// fused score put tenant chunks before global ones, then sort by DocID.
func Fuse(dense, sparse []model.RetrievedChunk, denseWeight, sparseWeight float64, limit int) []model.RetrievedChunk {
	entries := make(map[string]*fusedEntry)
	order := make([]string, 0, len(dense)+len(sparse))

	apply := func(chunks []model.RetrievedChunk, weight float64) {
		for i, chunk := range chunks {
			contribution := weight / float64(i+1)
			existing, ok := entries[chunk.DocID]
			if !ok {
				entries[chunk.DocID] = &fusedEntry{
					chunk:     chunk,
					score:     contribution,
					bestScore: chunk.Score,
					global:    chunk.IsGlobal(),
				}
				order = append(order, chunk.DocID)
				continue
			}
			existing.score += contribution
			existing.global = existing.global || chunk.IsGlobal()
			if chunk.Score > existing.bestScore {
				existing.chunk = chunk
				existing.bestScore = chunk.Score
			}
		}
	}
	apply(dense, denseWeight)
	apply(sparse, sparseWeight)

	ranked := make([]*fusedEntry, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, entries[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.global != b.global {
			return !a.global
		}
		return a.chunk.DocID < b.chunk.DocID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]model.RetrievedChunk, 0, len(ranked))
	for _, entry := range ranked {
		chunk := entry.chunk
		chunk.Score = entry.score
		chunk.Global = entry.global
		out = append(out, chunk)
	}
	return out
}
