// Package postgres implements the relational chunk store and the
// full-text index over a single `chunks` table in the same database,
// using pgx/v5 and pgxpool. The full-text tsvector column is maintained
// by a database trigger, so it can never drift from the row content
// within a transaction. The vector embedding itself lives in a separate
// table (see internal/store/vector) so the triple-index compensation
// pattern in the indexing orchestrator is real: the vector store never
// shares a transaction with the chunks table.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the chunks table, its full-text column, and the
// trigger that keeps the tsvector in sync on every insert/update — the
// same transaction boundary that makes the full-text index a derived
// artifact rather than an independently-written one.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id        BIGSERIAL PRIMARY KEY,
	document_id     TEXT NOT NULL,
	chunk_index     INT NOT NULL,
	chunk_hash      TEXT NOT NULL,

	content         TEXT NOT NULL,
	num_chars       INT NOT NULL,
	start_char      INT NOT NULL,
	end_char        INT NOT NULL,

	section_type    TEXT NOT NULL DEFAULT 'general',
	language        TEXT NOT NULL DEFAULT 'es',
	has_tables      BOOLEAN NOT NULL DEFAULT FALSE,
	has_amounts     BOOLEAN NOT NULL DEFAULT FALSE,
	entities        JSONB NOT NULL DEFAULT '{}'::jsonb,
	topic           TEXT NOT NULL DEFAULT '',

	source_id       TEXT NOT NULL DEFAULT '',
	jurisdiction_id TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMPTZ NOT NULL DEFAULT now(),

	embedding_model      TEXT NOT NULL DEFAULT '',
	embedding_dimensions INT NOT NULL DEFAULT 0,
	indexed_at           TIMESTAMPTZ,

	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	content_tsv     TSVECTOR,

	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_section_type ON chunks (section_type);
CREATE INDEX IF NOT EXISTS idx_chunks_content_tsv ON chunks USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks (source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_jurisdiction_id ON chunks (jurisdiction_id);
CREATE INDEX IF NOT EXISTS idx_chunks_published_at ON chunks (published_at);

CREATE OR REPLACE FUNCTION chunks_tsv_trigger() RETURNS trigger AS $$
BEGIN
	NEW.content_tsv := to_tsvector('spanish', NEW.content);
	RETURN NEW;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS chunks_tsv_update ON chunks;
CREATE TRIGGER chunks_tsv_update
	BEFORE INSERT OR UPDATE OF content ON chunks
	FOR EACH ROW EXECUTE FUNCTION chunks_tsv_trigger();
`

// Store wraps a pgxpool.Pool and realizes the relational chunk store and
// the full-text index over the chunks table.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. Callers own the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the chunks table, its indexes, and its tsvector
// trigger if they do not already exist. Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
