package lock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SemaphoreLocker is the default Locker: one size-1 weighted semaphore per
// name, created lazily and never removed (names are document IDs, a
// bounded and long-lived key space for a single ingestion process).
// TryAcquire uses semaphore.Weighted.TryAcquire, which never blocks,
// giving the fail-fast busy semantics index_document requires without a
// Redis dependency.
type SemaphoreLocker struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewSemaphoreLocker constructs an empty, ready-to-use locker.
func NewSemaphoreLocker() *SemaphoreLocker {
	return &SemaphoreLocker{sems: make(map[string]*semaphore.Weighted)}
}

func (l *SemaphoreLocker) semFor(name string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[name]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[name] = s
	}
	return s
}

// TryAcquire attempts to take the named lock without blocking.
func (l *SemaphoreLocker) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	sem := l.semFor(name)
	if !sem.TryAcquire(1) {
		return nil, false, nil
	}
	return func() { sem.Release(1) }, true, nil
}
