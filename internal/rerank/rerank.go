// Package rerank defines the optional cross-encoder re-ranking capability
// that the retrieval service applies after any search technique when
// requested, and a no-op default so
// re-ranking can be disabled without a nil check at every call site.
package rerank

import (
	"context"

	"dirc-core/internal/domain"
)

// ReRanker reorders a candidate set against the original query, typically
// with a cross-encoder model that scores (query, chunk) pairs directly
// rather than via independent embeddings.
type ReRanker interface {
	Rerank(ctx context.Context, query string, hits []domain.RankedHit) ([]domain.RankedHit, error)
}

// Noop returns hits unchanged; it is the default strategy when no
// rerank strategy is requested.
type Noop struct{}

// Rerank implements ReRanker by returning hits as-is.
func (Noop) Rerank(_ context.Context, _ string, hits []domain.RankedHit) ([]domain.RankedHit, error) {
	return hits, nil
}
