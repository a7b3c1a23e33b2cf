// Package vector implements the vector store: a dedicated chunk_vectors
// table with an HNSW index, written and queried through pgvector-go. It
// deliberately lives outside any transaction the relational store
// manages, so the indexing orchestrator's compensating-delete pattern has
// real failure modes to guard against.
//
// Each row carries the chunk's identity pair (document_id, chunk_index)
// plus the filter-relevant enrichment copied from the relational row, so
// the retrieval service can compile equality filters down to this store
// without a join back to chunks.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
)

// schemaDDL creates the chunk_vectors table and its HNSW approximate
// nearest-neighbor index. Dimensions are fixed per deployment; changing
// embedding models requires a new table or a dimension migration.
func schemaDDL(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunk_vectors (
	chunk_id        BIGINT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	chunk_index     INT NOT NULL,
	section_type    TEXT NOT NULL DEFAULT 'general',
	language        TEXT NOT NULL DEFAULT 'es',
	topic           TEXT NOT NULL DEFAULT '',
	source_id       TEXT NOT NULL DEFAULT '',
	jurisdiction_id TEXT NOT NULL DEFAULT '',
	has_tables      BOOLEAN NOT NULL DEFAULT FALSE,
	has_amounts     BOOLEAN NOT NULL DEFAULT FALSE,
	embedding       vector(%d) NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document_id ON chunk_vectors (document_id);

CREATE INDEX IF NOT EXISTS idx_chunk_vectors_hnsw
	ON chunk_vectors USING hnsw (embedding vector_cosine_ops)
	WITH (m = 16, ef_construction = 64);
`, dimensions)
}

// Store wraps a pgxpool.Pool dedicated to the chunk_vectors table.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// New constructs a Store for the given embedding dimensionality.
func New(pool *pgxpool.Pool, dimensions int) *Store {
	return &Store{pool: pool, dimensions: dimensions}
}

// EnsureSchema creates the chunk_vectors table and its HNSW index if
// missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL(s.dimensions)); err != nil {
		return fmt.Errorf("vector: ensure schema: %w", err)
	}
	return nil
}

// Upsert writes (or replaces) a chunk's embedding together with the
// identity pair and filter-relevant metadata copied from the relational
// row. Called by the indexing orchestrator before the relational
// transaction commits, per the compensation pattern: if that later commit
// fails, the caller must Delete this row.
func (s *Store) Upsert(ctx context.Context, chunk *domain.Chunk, embedding []float32) error {
	const q = `
INSERT INTO chunk_vectors (
	chunk_id, document_id, chunk_index, section_type, language, topic,
	source_id, jurisdiction_id, has_tables, has_amounts, embedding
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	chunk_index = EXCLUDED.chunk_index,
	section_type = EXCLUDED.section_type,
	language = EXCLUDED.language,
	topic = EXCLUDED.topic,
	source_id = EXCLUDED.source_id,
	jurisdiction_id = EXCLUDED.jurisdiction_id,
	has_tables = EXCLUDED.has_tables,
	has_amounts = EXCLUDED.has_amounts,
	embedding = EXCLUDED.embedding`

	_, err := s.pool.Exec(ctx, q,
		chunk.ChunkID, chunk.DocumentID, chunk.ChunkIndex, string(chunk.SectionType),
		chunk.Language, chunk.Topic, chunk.SourceID, chunk.JurisdictionID,
		chunk.HasTables, chunk.HasAmounts, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("vector: upsert: %w", errors.Join(err, direrrs.ErrVectorStore))
	}
	return nil
}

// Delete removes a single chunk's embedding, the compensating action taken
// when a later stage of index_chunk fails after the vector write but
// before the relational commit.
func (s *Store) Delete(ctx context.Context, chunkID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE chunk_id = $1`, chunkID)
	if err != nil {
		return fmt.Errorf("vector: delete: %w", errors.Join(err, direrrs.ErrVectorStore))
	}
	return nil
}

// DeleteBatch removes a list of chunk embeddings in one statement, the
// shape the rollback path uses: it deletes exactly the vectors written
// during the failed call, addressed by the chunk IDs the relational store
// assigned.
func (s *Store) DeleteBatch(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return fmt.Errorf("vector: delete batch: %w", errors.Join(err, direrrs.ErrVectorStore))
	}
	return nil
}

// DeleteByDocument removes every embedding for a document, used by the
// legacy single-index rollback and by repair before re-embedding.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("vector: delete by document: %w", errors.Join(err, direrrs.ErrVectorStore))
	}
	return nil
}

// CountByDocument backs the verify step's vector-side count.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	const q = `SELECT count(*) FROM chunk_vectors WHERE document_id = $1`
	var n int
	if err := s.pool.QueryRow(ctx, q, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("vector: count by document: %w", errors.Join(err, direrrs.ErrVectorStore))
	}
	return n, nil
}

// Search performs a cosine-distance nearest-neighbor query restricted by
// filter, this store's own filter language (equality predicates only).
// The returned score is 1 - distance/2, clamped to [0, 1], so a perfectly
// aligned vector scores 1 and an opposed one scores 0.
func (s *Store) Search(ctx context.Context, query []float32, topK int, filter domain.VectorFilter) ([]domain.RankedHit, error) {
	where, args := buildVectorFilter(filter, 2)
	clause := ""
	if where != "" {
		clause = "WHERE " + where
	}

	sql := fmt.Sprintf(`
SELECT chunk_id, document_id, chunk_index, section_type, embedding <=> $1 AS distance
FROM chunk_vectors
%s
ORDER BY embedding <=> $1
LIMIT %d`, clause, topK)

	allArgs := append([]any{pgvector.NewVector(query)}, args...)

	rows, err := s.pool.Query(ctx, sql, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", errors.Join(err, direrrs.ErrVectorStore))
	}
	defer rows.Close()

	var hits []domain.RankedHit
	for rows.Next() {
		var h domain.RankedHit
		var documentID, sectionType string
		var chunkIndex int
		var distance float64
		if err := rows.Scan(&h.ChunkID, &documentID, &chunkIndex, &sectionType, &distance); err != nil {
			return nil, fmt.Errorf("vector: scan hit: %w", err)
		}
		h.Score = distanceToScore(distance)
		h.Metadata = map[string]any{
			"document_id":  documentID,
			"chunk_index":  chunkIndex,
			"chunk_id":     h.ChunkID,
			"section_type": sectionType,
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// distanceToScore converts a cosine distance d in [0, 2] to 1 - d/2 in
// [0, 1], clamping against floating-point drift at the boundaries.
func distanceToScore(d float64) float64 {
	s := 1 - d/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// buildVectorFilter translates a VectorFilter into a parameterized WHERE
// fragment, starting argument numbering at startIdx.
func buildVectorFilter(f domain.VectorFilter, startIdx int) (string, []any) {
	var clauses []string
	var args []any
	idx := startIdx

	add := func(clause string, value any) {
		clauses = append(clauses, fmt.Sprintf(clause, idx))
		args = append(args, value)
		idx++
	}

	if f.DocumentID != "" {
		add("document_id = $%d", f.DocumentID)
	}
	if f.SourceID != "" {
		add("source_id = $%d", f.SourceID)
	}
	if f.JurisdictionID != "" {
		add("jurisdiction_id = $%d", f.JurisdictionID)
	}
	if f.Section != "" {
		add("section_type = $%d", string(f.Section))
	}
	if f.Language != "" {
		add("language = $%d", f.Language)
	}
	if f.Topic != "" {
		add("topic = $%d", f.Topic)
	}
	if f.HasTables != nil {
		add("has_tables = $%d", *f.HasTables)
	}
	if f.HasAmounts != nil {
		add("has_amounts = $%d", *f.HasAmounts)
	}

	return strings.Join(clauses, " AND "), args
}
