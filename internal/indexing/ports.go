package indexing

import (
	"context"
	"time"

	"dirc-core/internal/domain"
)

// RelationalStore is the subset of internal/store/postgres.Store the
// orchestrator depends on, narrowed to an interface so tests can supply an
// in-memory fake instead of a live Postgres connection.
//
// InsertIndexed is the transactional heart of the write path: the store
// inserts the chunk row, runs indexFn while the transaction is still
// open, and commits only if indexFn succeeds — so a failed embed or
// vector write rolls the relational row (and its trigger-derived
// full-text entry) back without any compensating delete.
type RelationalStore interface {
	InsertIndexed(ctx context.Context, chunk *domain.Chunk, indexFn func(context.Context) error) error
	MarkIndexed(ctx context.Context, chunkID int64, model string, dimensions int, at time.Time) error
	Touch(ctx context.Context, chunkID int64) error
	GetByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
	ChunkIDs(ctx context.Context, documentID string) ([]int64, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
	CountFullTextByDocument(ctx context.Context, documentID string) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// VectorStore is the subset of internal/store/vector.Store the
// orchestrator depends on.
type VectorStore interface {
	Upsert(ctx context.Context, chunk *domain.Chunk, embedding []float32) error
	Delete(ctx context.Context, chunkID int64) error
	DeleteBatch(ctx context.Context, chunkIDs []int64) error
	DeleteByDocument(ctx context.Context, documentID string) error
	CountByDocument(ctx context.Context, documentID string) (int, error)
}
