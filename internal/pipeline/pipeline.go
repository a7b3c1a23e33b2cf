// Package pipeline implements the ingestion pipeline service: it drives a
// document through Extract, Clean, Chunk, Enrich (tracked; performed
// inside indexing), and Index stages, recording per-stage statistics and
// stopping at the first failing stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dirc-core/internal/chunker"
	"dirc-core/internal/cleaner"
	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
	"dirc-core/internal/indexing"
	"dirc-core/internal/metrics"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageUploaded   Stage = "uploaded"
	StageExtracting Stage = "extracting"
	StageExtracted  Stage = "extracted"
	StageCleaning   Stage = "cleaning"
	StageCleaned    Stage = "cleaned"
	StageChunking   Stage = "chunking"
	StageChunked    Stage = "chunked"
	StageEnriching  Stage = "enriching"
	StageEnriched   Stage = "enriched"
	StageIndexing   Stage = "indexing"
	StageIndexed    Stage = "indexed"
	StageFailed     Stage = "failed"
)

// StageStats records one stage's execution: timing, outcome, and a small
// details map for stage-specific counters.
type StageStats struct {
	Stage       Stage
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64
	Success     bool
	Error       string
	Details     map[string]any
}

// Extractor turns a source file into raw text. PDF parsing is a caller
// concern; this module depends on it only through this interface.
type Extractor interface {
	Extract(ctx context.Context, fileID string) (text string, pageCount int, err error)
}

// Options configures a single ProcessDocument call: clean/enrich toggles,
// chunking tunables, and the legacy single-index switch.
type Options struct {
	SkipCleaning   bool
	SkipEnrichment bool
	ChunkerConfig  chunker.Config

	// UseTripleIndexing selects the full relational/full-text/vector
	// write path. Setting it false writes only the vector store — a
	// legacy migration affordance under which the triple-index
	// consistency guarantees are not enforced.
	UseTripleIndexing bool

	// SourceID and JurisdictionID are stamped onto every chunk produced
	// for this document, letting the retrieval service's keyword/hybrid
	// legs filter on them without a join back to a document table this
	// module doesn't own.
	SourceID       string
	JurisdictionID string
}

// DefaultOptions enables cleaning, enrichment, and triple indexing, and
// uses chunker.DefaultConfig.
func DefaultOptions() Options {
	return Options{ChunkerConfig: chunker.DefaultConfig(), UseTripleIndexing: true}
}

// validate rejects caller-supplied argument combinations that can never
// produce a well-formed chunking run.
func (o Options) validate() error {
	cfg := o.ChunkerConfig
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return fmt.Errorf("pipeline: chunk_overlap %d must be smaller than chunk_size %d: %w",
			cfg.ChunkOverlap, cfg.ChunkSize, direrrs.ErrInput)
	}
	if cfg.ChunkSize < 0 || cfg.ChunkOverlap < 0 || cfg.MinChunkSize < 0 {
		return fmt.Errorf("pipeline: negative chunking bounds: %w", direrrs.ErrInput)
	}
	return nil
}

// Response is the result of process_document: final stage reached, the
// per-stage history, total wall time, chunk counts, and an error if the
// pipeline did not reach Indexed.
type Response struct {
	DocumentID      string
	Success         bool
	CurrentStage    Stage
	Stages          []StageStats
	TotalDurationMs int64
	ChunksCreated   int
	ChunksIndexed   int
	Err             error
}

// Service drives documents through the pipeline.
type Service struct {
	extractor    Extractor
	cleaner      *cleaner.Cleaner
	chunker      *chunker.Chunker
	orchestrator *indexing.Orchestrator
	logger       *zap.Logger
}

// New constructs a Service. logger may be nil (defaults to a no-op
// logger).
func New(extractor Extractor, orchestrator *indexing.Orchestrator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extractor:    extractor,
		cleaner:      cleaner.NewDefault(),
		chunker:      chunker.NewDefault(),
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// ProcessDocument runs fileID through every stage, stopping at the first
// failure and recording it against the stage in progress.
func (s *Service) ProcessDocument(ctx context.Context, documentID, fileID string, opts Options) Response {
	start := time.Now()
	resp := Response{DocumentID: documentID, CurrentStage: StageUploaded}

	if err := opts.validate(); err != nil {
		return s.fail(resp, start, err)
	}

	text, _, err := s.runExtract(ctx, fileID, &resp)
	if err != nil {
		return s.fail(resp, start, err)
	}

	if err := checkCancelled(ctx); err != nil {
		return s.fail(resp, start, err)
	}

	cleaned := s.runClean(text, opts, &resp)

	if err := checkCancelled(ctx); err != nil {
		return s.fail(resp, start, err)
	}

	chunks, err := s.runChunk(cleaned, opts, &resp)
	if err != nil {
		return s.fail(resp, start, err)
	}
	resp.ChunksCreated = len(chunks)

	if !opts.SkipEnrichment {
		// Enrichment itself runs per chunk inside the orchestrator's
		// IndexChunk; the stage is recorded here so the stage history
		// stays complete.
		s.recordStage(&resp, StageEnriching, StageEnriched, true, "", nil)
	}

	if err := checkCancelled(ctx); err != nil {
		return s.fail(resp, start, err)
	}

	indexed, err := s.runIndex(ctx, documentID, chunks, opts, &resp)
	if err != nil {
		return s.fail(resp, start, err)
	}
	resp.ChunksIndexed = indexed

	resp.Success = true
	resp.CurrentStage = StageIndexed
	resp.TotalDurationMs = time.Since(start).Milliseconds()
	return resp
}

func (s *Service) runExtract(ctx context.Context, fileID string, resp *Response) (string, int, error) {
	start := time.Now()
	text, pageCount, err := s.extractor.Extract(ctx, fileID)
	if err != nil {
		err = fmt.Errorf("pipeline: extract: %w", errors.Join(err, direrrs.ErrExtraction))
		s.recordStage(resp, StageExtracting, StageFailed, false, err.Error(), nil)
		return "", 0, err
	}
	s.recordStageTimed(resp, StageExtracting, StageExtracted, true, "", map[string]any{
		"pages":       pageCount,
		"total_chars": len(text),
	}, start)
	return text, pageCount, nil
}

func (s *Service) runClean(text string, opts Options, resp *Response) string {
	if opts.SkipCleaning {
		return text
	}
	start := time.Now()
	cleaned := s.cleaner.Clean(text)
	s.recordStageTimed(resp, StageCleaning, StageCleaned, true, "", map[string]any{
		"chars_before": len(text),
		"chars_after":  len(cleaned),
	}, start)
	return cleaned
}

func (s *Service) runChunk(text string, opts Options, resp *Response) ([]domain.Chunk, error) {
	start := time.Now()
	c := s.chunker
	if opts.ChunkerConfig.ChunkSize > 0 {
		c = chunker.New(opts.ChunkerConfig)
	}
	results := c.Chunk(text)
	if len(results) == 0 {
		err := fmt.Errorf("pipeline: chunk: %w", direrrs.ErrChunking)
		s.recordStageTimed(resp, StageChunking, StageFailed, false, err.Error(), nil, start)
		return nil, err
	}

	chunks := make([]domain.Chunk, len(results))
	for i, r := range results {
		chunks[i] = domain.Chunk{
			ChunkIndex:     r.ChunkIndex,
			Text:           r.Text,
			NumChars:       r.NumChars,
			StartChar:      r.StartChar,
			EndChar:        r.EndChar,
			SourceID:       opts.SourceID,
			JurisdictionID: opts.JurisdictionID,
		}
	}

	s.recordStageTimed(resp, StageChunking, StageChunked, true, "", map[string]any{
		"num_chunks": len(chunks),
	}, start)
	return chunks, nil
}

func (s *Service) runIndex(ctx context.Context, documentID string, chunks []domain.Chunk, opts Options, resp *Response) (int, error) {
	start := time.Now()
	result := s.orchestrator.IndexDocumentWithOptions(ctx, documentID, chunks, indexing.DocumentOptions{
		SkipEnrichment: opts.SkipEnrichment,
		TripleIndexing: opts.UseTripleIndexing,
	})
	if result.Err != nil {
		s.recordStageTimed(resp, StageIndexing, StageFailed, false, result.Err.Error(), map[string]any{
			"rollback_applied": result.RollbackApplied,
		}, start)
		return 0, fmt.Errorf("pipeline: index: %w", result.Err)
	}
	s.recordStageTimed(resp, StageIndexing, StageIndexed, true, "", map[string]any{
		"chunks_indexed": result.ChunksIndexed,
	}, start)
	return result.ChunksIndexed, nil
}

func (s *Service) recordStage(resp *Response, from, to Stage, success bool, errMsg string, details map[string]any) {
	s.recordStageTimed(resp, from, to, success, errMsg, details, time.Now())
}

func (s *Service) recordStageTimed(resp *Response, from, to Stage, success bool, errMsg string, details map[string]any, start time.Time) {
	now := time.Now()
	resp.Stages = append(resp.Stages, StageStats{
		Stage:       from,
		StartedAt:   start,
		CompletedAt: now,
		DurationMs:  now.Sub(start).Milliseconds(),
		Success:     success,
		Error:       errMsg,
		Details:     details,
	})
	resp.CurrentStage = to

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.StageDuration.WithLabelValues(string(from), outcome).Observe(now.Sub(start).Seconds())
}

// checkCancelled honors a caller-propagated cancellation signal at the
// inter-stage boundary: a CPU-bound stage in progress finishes its
// current chunk, but the pipeline won't start the next stage once ctx is
// done.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: %w", errors.Join(err, direrrs.ErrCancelled))
	}
	return nil
}

func (s *Service) fail(resp Response, start time.Time, err error) Response {
	resp.Success = false
	resp.CurrentStage = StageFailed
	resp.TotalDurationMs = time.Since(start).Milliseconds()
	resp.Err = err
	s.logger.Warn("pipeline: document failed",
		zap.String("document_id", resp.DocumentID), zap.String("stage", string(resp.CurrentStage)), zap.Error(err))
	return resp
}

// BatchJob names one document to ingest and the file it comes from.
type BatchJob struct {
	DocumentID string
	FileID     string
}

// BatchResult pairs a batch job's document ID with its pipeline Response.
type BatchResult struct {
	DocumentID string
	Response   Response
}

// ProcessBatch runs ProcessDocument for each job in order, never aborting
// the batch on one file's failure. Results come back in job order.
func (s *Service) ProcessBatch(ctx context.Context, jobs []BatchJob, opts Options) []BatchResult {
	results := make([]BatchResult, 0, len(jobs))
	for _, job := range jobs {
		resp := s.ProcessDocument(ctx, job.DocumentID, job.FileID, opts)
		results = append(results, BatchResult{DocumentID: job.DocumentID, Response: resp})
	}
	return results
}
