package adapter

import (
	"context"

	"incident-analyzer/internal/domain/model"
)

// IndexMatch is one nearest-neighbour hit. Score is cosine similarity.
type IndexMatch struct {
	Document model.IncidentDocument
	Score    float64
}

// SimilarityIndex is the port for the vector index holding prior incidents.
// Query on an empty index returns no matches and no error. Matches are sorted
// by score descending, ties in insertion order.
type SimilarityIndex interface {
	Upsert(ctx context.Context, doc model.IncidentDocument, vector []float32) error
	Query(ctx context.Context, vector []float32, k int) ([]IndexMatch, error)
	Count(ctx context.Context) (int, error)
}
