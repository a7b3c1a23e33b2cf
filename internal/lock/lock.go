// Package lock serializes indexing writes per document_id behind a common
// Locker interface: an in-process weighted semaphore for single-process
// deployments and a Redis-backed distributed lock for multi-instance
// ones.
package lock

import "context"

// Locker guards a named resource (a document_id) against concurrent
// index_document calls. TryAcquire must not block: callers rely on it to
// implement fail-fast busy semantics (direrrs.ErrBusy) rather than
// queuing.
type Locker interface {
	TryAcquire(ctx context.Context, name string) (Release func(), ok bool, err error)
}
