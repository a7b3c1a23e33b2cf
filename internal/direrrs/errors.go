// Package direrrs collects the sentinel error taxonomy shared across the
// ingestion and retrieval core, following the flat errors.New block style
// used for domain errors throughout the example pack rather than ad hoc
// per-package error strings.
package direrrs

import "errors"

var (
	// ErrInput indicates caller-supplied arguments were invalid, e.g.
	// chunk_overlap >= chunk_size, an unknown file-id, or an empty query.
	// Non-retriable; surfaced to the caller unmodified.
	ErrInput = errors.New("dirc: invalid input")

	// ErrExtraction indicates the Extractor collaborator could not turn a
	// source file into text. Pipeline-terminal; no partial state exists.
	ErrExtraction = errors.New("dirc: extraction failed")

	// ErrChunking indicates the chunker could not produce any chunk passing
	// min_chunk_size. Pipeline-terminal.
	ErrChunking = errors.New("dirc: chunking produced no chunks")

	// ErrEmbedding indicates the embedding provider failed after its own
	// retries. Triggers per-document rollback in the orchestrator.
	ErrEmbedding = errors.New("dirc: embedding failed")

	// ErrVectorStore indicates a vector store write or read failed.
	ErrVectorStore = errors.New("dirc: vector store error")

	// ErrKeywordStore indicates the full-text index read failed.
	ErrKeywordStore = errors.New("dirc: keyword store error")

	// ErrRelationalStore indicates the relational chunk store transaction
	// failed.
	ErrRelationalStore = errors.New("dirc: relational store error")

	// ErrConsistency is never raised by routine calls: Verify reports
	// disagreement in its ConsistencyReport, and only Repair returns an
	// error wrapping it, when a post-repair verify still disagrees.
	ErrConsistency = errors.New("dirc: index consistency check failed")

	// ErrCancelled indicates the caller's context was cancelled; any
	// partial writes have been rolled back.
	ErrCancelled = errors.New("dirc: operation cancelled")

	// ErrTimeout indicates a per-call deadline elapsed. Treated identically
	// to the corresponding store error by callers.
	ErrTimeout = errors.New("dirc: deadline exceeded")

	// ErrBusy indicates a concurrent index_document call for the same
	// document_id is already in flight; this call fails fast rather than
	// blocking.
	ErrBusy = errors.New("dirc: document is already being indexed")

	// ErrNotFound indicates the requested document or chunk does not exist.
	ErrNotFound = errors.New("dirc: not found")
)
