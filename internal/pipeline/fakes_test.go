package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"dirc-core/internal/domain"
)

// relationalFake and vectorFake satisfy indexing.RelationalStore and
// indexing.VectorStore minimally, enough to drive a pipeline.Service
// end-to-end in tests without a live Postgres connection.

type relationalFake struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Chunk
}

func (f *relationalFake) init() {
	if f.byID == nil {
		f.byID = make(map[int64]*domain.Chunk)
	}
}

func (f *relationalFake) InsertIndexed(ctx context.Context, chunk *domain.Chunk, indexFn func(context.Context) error) error {
	f.mu.Lock()
	f.init()
	f.nextID++
	chunk.ChunkID = f.nextID
	f.mu.Unlock()

	if err := indexFn(ctx); err != nil {
		return err
	}

	now := time.Now()
	chunk.IndexedAt = &now

	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *chunk
	f.byID[chunk.ChunkID] = &cp
	return nil
}

func (f *relationalFake) MarkIndexed(_ context.Context, chunkID int64, model string, dims int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[chunkID]; ok {
		c.EmbeddingModel, c.EmbeddingDimensions, c.IndexedAt = model, dims, &at
	}
	return nil
}

func (f *relationalFake) Touch(_ context.Context, _ int64) error { return nil }

func (f *relationalFake) GetByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, c := range f.byID {
		if c.DocumentID == documentID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *relationalFake) ChunkIDs(_ context.Context, documentID string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, c := range f.byID {
		if c.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *relationalFake) CountByDocument(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.byID {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (f *relationalFake) CountFullTextByDocument(ctx context.Context, documentID string) (int, error) {
	return f.CountByDocument(ctx, documentID)
}

func (f *relationalFake) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.byID {
		if c.DocumentID == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

type vectorFake struct {
	mu   sync.Mutex
	byID map[int64]string
}

func (f *vectorFake) init() {
	if f.byID == nil {
		f.byID = make(map[int64]string)
	}
}

func (f *vectorFake) Upsert(_ context.Context, chunk *domain.Chunk, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.byID[chunk.ChunkID] = chunk.DocumentID
	return nil
}

func (f *vectorFake) Delete(_ context.Context, chunkID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, chunkID)
	return nil
}

func (f *vectorFake) DeleteBatch(_ context.Context, chunkIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range chunkIDs {
		delete(f.byID, id)
	}
	return nil
}

func (f *vectorFake) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, doc := range f.byID {
		if doc == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *vectorFake) CountByDocument(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, doc := range f.byID {
		if doc == documentID {
			n++
		}
	}
	return n, nil
}
