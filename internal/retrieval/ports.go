package retrieval

import (
	"context"

	"dirc-core/internal/domain"
)

// VectorSearcher is the subset of internal/store/vector.Store the
// retrieval service depends on, narrowed to an interface for testability.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, topK int, filter domain.VectorFilter) ([]domain.RankedHit, error)
}

// KeywordSearcher is the subset of internal/store/postgres.Store the
// retrieval service depends on for the full-text leg.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, topK int, filters domain.Filters) ([]domain.RankedHit, error)
}

// QueryEmbedder embeds a query string into the same vector space the
// chunk embeddings live in.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
