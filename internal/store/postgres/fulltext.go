package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
)

// SearchKeyword is the keyword leg: it ranks chunks by Postgres's ts_rank_cd
// against a plainto_tsquery built from query, restricted by filters, both
// using the same 'spanish' text search configuration the schema's trigger
// indexes with.
func (s *Store) SearchKeyword(ctx context.Context, query string, topK int, filters domain.Filters) ([]domain.RankedHit, error) {
	where, args := buildFilterClause(filters, 2)
	clause := ""
	if where != "" {
		clause = " AND " + where
	}

	sql := fmt.Sprintf(`
SELECT chunk_id, content, section_type, document_id,
       ts_rank_cd(content_tsv, plainto_tsquery('spanish', $1)) AS score
FROM chunks
WHERE content_tsv @@ plainto_tsquery('spanish', $1)%s
ORDER BY score DESC
LIMIT %d`, clause, topK)

	allArgs := append([]any{query}, args...)

	rows, err := s.pool.Query(ctx, sql, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search keyword: %w", errors.Join(err, direrrs.ErrKeywordStore))
	}
	defer rows.Close()

	var hits []domain.RankedHit
	for rows.Next() {
		var h domain.RankedHit
		var sectionType, documentID string
		if err := rows.Scan(&h.ChunkID, &h.Text, &sectionType, &documentID, &h.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan keyword hit: %w", err)
		}
		h.Metadata = map[string]any{"section_type": sectionType, "document_id": documentID}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// buildFilterClause translates domain.Filters into a parameterized SQL
// WHERE fragment (without the leading "WHERE"/"AND"), starting argument
// numbering at startIdx. The relational/full-text leg can enforce every
// filter field since they are ordinary column/JSONB predicates.
func buildFilterClause(f domain.Filters, startIdx int) (string, []any) {
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
	if f.Topic != "" {
		add("topic = $%d", f.Topic)
	}
	if f.Language != "" {
		add("language = $%d", f.Language)
	}
	if f.HasTables != nil {
		add("has_tables = $%d", *f.HasTables)
	}
	if f.HasAmounts != nil {
		add("has_amounts = $%d", *f.HasAmounts)
	}
	// year/month arrive as caller-supplied strings; parse to int rather
	// than binding raw text against extract()'s numeric result, and drop
	// the predicate on malformed input rather than erroring, consistent
	// with unknown filter keys being ignored generally.
	if year, err := strconv.Atoi(f.Year); err == nil {
		add("extract(year from published_at) = $%d", year)
	}
	if month, err := strconv.Atoi(f.Month); err == nil {
		add("extract(month from published_at) = $%d", month)
	}
	if len(f.Entities) > 0 {
		for _, e := range f.Entities {
			add("entities::text ILIKE $%d", "%"+e+"%")
		}
	}

	return strings.Join(clauses, " AND "), args
}
