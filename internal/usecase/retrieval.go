package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/domain/ports/adapter"
	"incident-analyzer/internal/infra/metrics"
)

// ContextRetriever finds prior incidents similar to a triage query. Every
// collaborator failure degrades to an empty result.
type ContextRetriever struct {
	embedder adapter.Embedder
	index    adapter.SimilarityIndex
	log      *zerolog.Logger
}

func NewContextRetriever(embedder adapter.Embedder, index adapter.SimilarityIndex, logger *zerolog.Logger) *ContextRetriever {
	return &ContextRetriever{embedder: embedder, index: index, log: logger}
}

func (r *ContextRetriever) Retrieve(ctx context.Context, query string, k int) model.RetrievalResult {
	out := model.RetrievalResult{}
	if k <= 0 || strings.TrimSpace(query) == "" || r.embedder == nil || r.index == nil {
		return out
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		r.log.Warn().Err(err).Msg("embedding failed; continuing without related incidents")
		metrics.IncFallback("retriever")
		return out
	}
	matches, err := r.index.Query(ctx, vecs[0], k)
	if err != nil {
		r.log.Warn().Err(err).Msg("index query failed; continuing without related incidents")
		metrics.IncFallback("retriever")
		return out
	}

	for _, m := range matches {
		out = append(out, model.RelatedCase{
			Title:    m.Document.Title,
			Score:    model.Clamp01(m.Score),
			Snippet:  m.Document.Snippet(),
			SourceID: m.Document.ID,
		})
	}
	// index order already breaks ties by insertion; keep it
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	metrics.ObserveRetrieval(len(out))
	return out
}
