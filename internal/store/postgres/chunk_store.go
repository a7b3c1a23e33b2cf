package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
)

const insertChunkSQL = `
INSERT INTO chunks (
	document_id, chunk_index, chunk_hash, content, num_chars, start_char, end_char,
	section_type, language, has_tables, has_amounts, entities, topic,
	source_id, jurisdiction_id, published_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING chunk_id`

// InsertIndexed writes a chunk row and holds the transaction open while
// indexFn runs (the embed and vector writes), so the row — and the
// full-text entry its trigger derives — become visible only once every
// index holds the chunk. The insert is flushed inside the transaction to
// obtain the generated chunk_id before indexFn sees the chunk. An indexFn
// failure rolls the row back; success stamps indexed_at and the embedding
// bookkeeping the caller set on the chunk, then commits.
func (s *Store) InsertIndexed(ctx context.Context, chunk *domain.Chunk, indexFn func(context.Context) error) error {
	entities, err := json.Marshal(chunk.Entities)
	if err != nil {
		return fmt.Errorf("postgres: marshal entities: %w", err)
	}

	publishedAt := chunk.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	defer tx.Rollback(ctx) // no-op once committed

	row := tx.QueryRow(ctx, insertChunkSQL,
		chunk.DocumentID, chunk.ChunkIndex, chunk.ChunkHash, chunk.Text, chunk.NumChars,
		chunk.StartChar, chunk.EndChar, string(chunk.SectionType), chunk.Language,
		chunk.HasTables, chunk.HasAmounts, entities, chunk.Topic,
		chunk.SourceID, chunk.JurisdictionID, publishedAt,
	)
	if err := row.Scan(&chunk.ChunkID); err != nil {
		return fmt.Errorf("postgres: insert chunk: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	chunk.PublishedAt = publishedAt

	if err := indexFn(ctx); err != nil {
		return err
	}

	now := time.Now()
	const markSQL = `UPDATE chunks SET indexed_at=$1, embedding_model=$2, embedding_dimensions=$3 WHERE chunk_id=$4`
	if _, err := tx.Exec(ctx, markSQL, now, chunk.EmbeddingModel, chunk.EmbeddingDimensions, chunk.ChunkID); err != nil {
		return fmt.Errorf("postgres: mark indexed: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit chunk: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	chunk.IndexedAt = &now
	return nil
}

// MarkIndexed records the instant a chunk's embedding was durably written
// to the vector store. Used by repair, which re-embeds rows that already
// committed; the ingest path stamps indexed_at inside InsertIndexed's
// transaction instead.
func (s *Store) MarkIndexed(ctx context.Context, chunkID int64, model string, dimensions int, at time.Time) error {
	const q = `UPDATE chunks SET indexed_at=$1, embedding_model=$2, embedding_dimensions=$3 WHERE chunk_id=$4`
	tag, err := s.pool.Exec(ctx, q, at, model, dimensions, chunkID)
	if err != nil {
		return fmt.Errorf("postgres: mark indexed: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark indexed: %w", direrrs.ErrNotFound)
	}
	return nil
}

// Touch refires the content_tsv trigger without otherwise modifying the
// row, used by repair to rebuild the full-text index for chunks whose
// content hasn't changed.
func (s *Store) Touch(ctx context.Context, chunkID int64) error {
	const q = `UPDATE chunks SET content = content WHERE chunk_id = $1`
	_, err := s.pool.Exec(ctx, q, chunkID)
	if err != nil {
		return fmt.Errorf("postgres: touch chunk: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	return nil
}

// GetByDocument returns every chunk for a document ordered by chunk_index,
// the order the chunker originally produced them in.
func (s *Store) GetByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	const q = `
SELECT chunk_id, document_id, chunk_index, chunk_hash, content, num_chars, start_char, end_char,
       section_type, language, has_tables, has_amounts, entities, topic,
       source_id, jurisdiction_id, published_at,
       embedding_model, embedding_dimensions, indexed_at
FROM chunks WHERE document_id = $1 ORDER BY chunk_index ASC`

	rows, err := s.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get by document: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var sectionType string
		var entitiesRaw []byte
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.ChunkHash, &c.Text, &c.NumChars,
			&c.StartChar, &c.EndChar, &sectionType, &c.Language, &c.HasTables, &c.HasAmounts,
			&entitiesRaw, &c.Topic, &c.SourceID, &c.JurisdictionID, &c.PublishedAt,
			&c.EmbeddingModel, &c.EmbeddingDimensions, &c.IndexedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		c.SectionType = domain.SectionType(sectionType)
		_ = json.Unmarshal(entitiesRaw, &c.Entities)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate chunks: %w", err)
	}
	return out, nil
}

// CountByDocument is used by the verify step to compare the relational
// row count against the full-text and vector counts.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	const q = `SELECT count(*) FROM chunks WHERE document_id = $1`
	var n int
	if err := s.pool.QueryRow(ctx, q, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count by document: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	return n, nil
}

// CountFullTextByDocument counts rows whose content_tsv is populated, the
// full-text side of the verify step's three-way count comparison.
func (s *Store) CountFullTextByDocument(ctx context.Context, documentID string) (int, error) {
	const q = `SELECT count(*) FROM chunks WHERE document_id = $1 AND content_tsv IS NOT NULL`
	var n int
	if err := s.pool.QueryRow(ctx, q, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count full text by document: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	return n, nil
}

// ChunkIDs returns the chunk_id list for a document, ordered by
// chunk_index, used by the rollback path to batch-address the vector
// store.
func (s *Store) ChunkIDs(ctx context.Context, documentID string) ([]int64, error) {
	const q = `SELECT chunk_id FROM chunks WHERE document_id = $1 ORDER BY chunk_index ASC`
	rows, err := s.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: chunk ids: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByDocument removes every chunk belonging to documentID, used by
// IndexDocument's rollback path and by administrative purge.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("postgres: delete by document: %w", errors.Join(err, direrrs.ErrRelationalStore))
	}
	return nil
}
