// Package indexing implements the indexing orchestrator: the component
// that keeps the relational store, full-text index, and vector store
// mutually consistent without a distributed transaction. The relational
// and full-text sides share a transaction by construction (the tsvector
// trigger); the vector store is written first and compensated with a
// delete if the later relational commit fails. Writes are serialized per
// document_id through a Locker, so concurrent calls for the same
// document fail fast instead of interleaving chunk rows.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"go.uber.org/zap"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
	"dirc-core/internal/embedding"
	"dirc-core/internal/enricher"
	"dirc-core/internal/lock"
	"dirc-core/internal/metrics"
)

// Result is the outcome of one IndexChunk or IndexDocument call.
type Result struct {
	Success         bool
	ChunksIndexed   int
	Err             error
	RollbackApplied bool
}

// DocumentOptions tunes one IndexDocument call. TripleIndexing defaults to
// true; turning it off writes only the vector store (the legacy "simple"
// path kept for migration, under which the cross-index consistency
// guarantees do not hold).
type DocumentOptions struct {
	SkipEnrichment bool
	TripleIndexing bool
}

// DefaultDocumentOptions enriches every chunk and writes all three indexes.
func DefaultDocumentOptions() DocumentOptions {
	return DocumentOptions{TripleIndexing: true}
}

// ConsistencyReport is the outcome of verify(): per-index row counts,
// whether they agree, and a human-readable summary of what disagrees.
type ConsistencyReport struct {
	RelationalCount int
	FullTextCount   int
	VectorCount     int
	Consistent      bool
	Message         string
}

// Orchestrator coordinates the three stores and the embedding provider
// behind a per-document_id lock.
type Orchestrator struct {
	relational RelationalStore
	vectors    VectorStore
	embedder   embedding.Provider
	locker     lock.Locker
	enricher   *enricher.Enricher
	logger     *zap.Logger
}

// New constructs an Orchestrator. logger may be zap.NewNop() in tests.
func New(relational RelationalStore, vectors VectorStore, embedder embedding.Provider, locker lock.Locker, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		relational: relational,
		vectors:    vectors,
		embedder:   embedder,
		locker:     locker,
		enricher:   enricher.New(),
		logger:     logger,
	}
}

// IndexChunk enriches, persists, and embeds a single chunk, rolling back
// its own partial writes on any failure. IndexChunk itself takes no lock;
// callers that need per-document serialization go through IndexDocument.
func (o *Orchestrator) IndexChunk(ctx context.Context, chunk *domain.Chunk) error {
	return o.indexChunk(ctx, chunk, DefaultDocumentOptions())
}

func (o *Orchestrator) indexChunk(ctx context.Context, chunk *domain.Chunk, opts DocumentOptions) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("indexing: %w", errors.Join(err, direrrs.ErrCancelled))
	}

	if opts.SkipEnrichment {
		if chunk.Language == "" {
			chunk.Language = "es"
		}
		if chunk.ChunkHash == "" {
			chunk.ChunkHash = enricher.HashText(chunk.Text)
		}
		if chunk.SectionType == "" {
			chunk.SectionType = domain.SectionGeneral
		}
	} else {
		o.enricher.Enrich(chunk)
	}
	if chunk.PublishedAt.IsZero() {
		chunk.PublishedAt = time.Now()
	}

	if !opts.TripleIndexing {
		return o.indexChunkVectorOnly(ctx, chunk)
	}

	chunk.EmbeddingModel = o.embedder.Model()
	chunk.EmbeddingDimensions = o.embedder.Dimensions()

	// The relational insert, the trigger-derived full-text entry, and the
	// indexed_at stamp all live in one transaction the store holds open
	// while the embed and vector writes run. A failure before the vector
	// write needs no compensation (the rollback discards the row); a
	// failure after it deletes the orphan vector.
	vectorWritten := false
	err := o.relational.InsertIndexed(ctx, chunk, func(fnCtx context.Context) error {
		vec, err := o.embedder.Embed(fnCtx, chunk.Text)
		if err != nil {
			return fmt.Errorf("indexing: embed chunk: %w", err)
		}
		if err := o.vectors.Upsert(fnCtx, chunk, vec); err != nil {
			return fmt.Errorf("indexing: upsert vector: %w", err)
		}
		vectorWritten = true
		return nil
	})
	if err != nil {
		if vectorWritten {
			_ = o.vectors.Delete(ctx, chunk.ChunkID)
		}
		return err
	}
	return nil
}

// indexChunkVectorOnly is the legacy single-index path: no relational row
// exists, so the vector row is keyed by a synthetic ID derived from
// (document_id, chunk_index). Kept only for migration of corpora indexed
// before triple-indexing; verify/repair make no promises about documents
// written this way.
func (o *Orchestrator) indexChunkVectorOnly(ctx context.Context, chunk *domain.Chunk) error {
	vec, err := o.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("indexing: embed chunk: %w", err)
	}

	if chunk.ChunkID == 0 {
		chunk.ChunkID = syntheticChunkID(chunk.DocumentID, chunk.ChunkIndex)
	}
	if err := o.vectors.Upsert(ctx, chunk, vec); err != nil {
		return fmt.Errorf("indexing: upsert vector: %w", err)
	}
	return nil
}

// syntheticChunkID derives a stable positive identifier from the identity
// pair, standing in for the relational store's generated chunk_id on the
// legacy vector-only path.
func syntheticChunkID(documentID string, chunkIndex int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(documentID))
	_, _ = fmt.Fprintf(h, "#%d", chunkIndex)
	return int64(h.Sum64() & math.MaxInt64)
}

// IndexDocument indexes every chunk of a document under a per-document_id
// lock, failing fast with direrrs.ErrBusy if another call for the same
// document is already in flight. On the first chunk failure, every chunk
// already written for this document is rolled back from both the
// relational and vector stores, keeping the call all-or-nothing.
func (o *Orchestrator) IndexDocument(ctx context.Context, documentID string, chunks []domain.Chunk) Result {
	return o.IndexDocumentWithOptions(ctx, documentID, chunks, DefaultDocumentOptions())
}

// IndexDocumentWithOptions is IndexDocument with explicit per-call options
// (enrichment skip, legacy single-index path).
func (o *Orchestrator) IndexDocumentWithOptions(ctx context.Context, documentID string, chunks []domain.Chunk, opts DocumentOptions) Result {
	release, ok, err := o.locker.TryAcquire(ctx, documentID)
	if err != nil {
		metrics.IndexingOutcomes.WithLabelValues("error").Inc()
		return Result{Err: fmt.Errorf("indexing: acquire lock: %w", err)}
	}
	if !ok {
		metrics.IndexingOutcomes.WithLabelValues("busy").Inc()
		return Result{Err: direrrs.ErrBusy}
	}
	defer release()

	indexed := 0
	for i := range chunks {
		chunk := &chunks[i]
		chunk.DocumentID = documentID
		if err := o.indexChunk(ctx, chunk, opts); err != nil {
			o.logger.Warn("index_document: chunk failed, rolling back document",
				zap.String("document_id", documentID), zap.Int("chunk_index", chunk.ChunkIndex), zap.Error(err))

			if rbErr := o.rollbackDocument(ctx, documentID, opts); rbErr != nil {
				o.logger.Error("index_document: rollback failed", zap.String("document_id", documentID), zap.Error(rbErr))
			}

			metrics.IndexingOutcomes.WithLabelValues("rolled_back").Inc()
			return Result{Err: err, RollbackApplied: true}
		}
		indexed++
	}

	metrics.IndexingOutcomes.WithLabelValues("committed").Inc()
	return Result{Success: true, ChunksIndexed: indexed}
}

// rollbackDocument undoes every write the failed IndexDocument call made:
// the vector entries are batch-deleted by the chunk ID list the
// relational store assigned during the call, then the relational rows go
// (cascading to the full-text entries via trigger). The legacy
// single-index path has no relational rows to enumerate, so its vectors
// are deleted by document instead.
func (o *Orchestrator) rollbackDocument(ctx context.Context, documentID string, opts DocumentOptions) error {
	var errs []error
	if opts.TripleIndexing {
		ids, err := o.relational.ChunkIDs(ctx, documentID)
		if err != nil {
			errs = append(errs, err)
		}
		if err := o.vectors.DeleteBatch(ctx, ids); err != nil {
			errs = append(errs, err)
		}
	} else {
		if err := o.vectors.DeleteByDocument(ctx, documentID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := o.relational.DeleteByDocument(ctx, documentID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Verify compares relational, full-text, and vector row counts for a
// document and checks that chunk indexes form a dense range.
func (o *Orchestrator) Verify(ctx context.Context, documentID string) (ConsistencyReport, error) {
	relCount, err := o.relational.CountByDocument(ctx, documentID)
	if err != nil {
		return ConsistencyReport{}, err
	}
	ftsCount, err := o.relational.CountFullTextByDocument(ctx, documentID)
	if err != nil {
		return ConsistencyReport{}, err
	}
	vecCount, err := o.vectors.CountByDocument(ctx, documentID)
	if err != nil {
		return ConsistencyReport{}, err
	}

	report := ConsistencyReport{
		RelationalCount: relCount,
		FullTextCount:   ftsCount,
		VectorCount:     vecCount,
		Consistent:      relCount == ftsCount && ftsCount == vecCount,
	}

	if !report.Consistent {
		report.Message = fmt.Sprintf("index counts diverge: sql=%d fts=%d vector=%d", relCount, ftsCount, vecCount)
	}

	// Counts agreeing is necessary but not sufficient: chunk_index values
	// must also form a dense 0..N-1 range within the document.
	if report.Consistent && relCount > 0 {
		chunks, err := o.relational.GetByDocument(ctx, documentID)
		if err != nil {
			return ConsistencyReport{}, err
		}
		seen := make(map[int]bool, len(chunks))
		for _, c := range chunks {
			seen[c.ChunkIndex] = true
		}
		for i := 0; i < relCount; i++ {
			if !seen[i] {
				report.Consistent = false
				report.Message = fmt.Sprintf("chunk_index range has a hole at %d", i)
				break
			}
		}
	}

	outcome := "consistent"
	if !report.Consistent {
		outcome = "inconsistent"
	}
	metrics.ConsistencyChecks.WithLabelValues(outcome).Inc()

	return report, nil
}

// Repair treats the relational store as the source of truth: it clears
// the vector entries for a document, refires the full-text trigger on
// every surviving row, re-embeds each chunk, and re-inserts its vector,
// then re-verifies. This covers the crash window between a vector write
// and its relational commit, which can strand orphan vectors.
func (o *Orchestrator) Repair(ctx context.Context, documentID string) (ConsistencyReport, error) {
	chunks, err := o.relational.GetByDocument(ctx, documentID)
	if err != nil {
		return ConsistencyReport{}, fmt.Errorf("indexing: repair: load chunks: %w", err)
	}

	if err := o.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return ConsistencyReport{}, fmt.Errorf("indexing: repair: clear vectors: %w", err)
	}

	for i := range chunks {
		chunk := &chunks[i]
		if err := o.relational.Touch(ctx, chunk.ChunkID); err != nil {
			return ConsistencyReport{}, fmt.Errorf("indexing: repair: touch chunk %d: %w", chunk.ChunkID, err)
		}

		vec, err := o.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return ConsistencyReport{}, fmt.Errorf("indexing: repair: re-embed chunk %d: %w", chunk.ChunkID, err)
		}
		if err := o.vectors.Upsert(ctx, chunk, vec); err != nil {
			return ConsistencyReport{}, fmt.Errorf("indexing: repair: re-insert vector %d: %w", chunk.ChunkID, err)
		}

		now := time.Now()
		if err := o.relational.MarkIndexed(ctx, chunk.ChunkID, o.embedder.Model(), o.embedder.Dimensions(), now); err != nil {
			return ConsistencyReport{}, fmt.Errorf("indexing: repair: mark indexed %d: %w", chunk.ChunkID, err)
		}
	}

	report, err := o.Verify(ctx, documentID)
	if err != nil {
		return report, err
	}
	if !report.Consistent {
		return report, fmt.Errorf("indexing: repair: %s: %w", report.Message, direrrs.ErrConsistency)
	}
	return report, nil
}
