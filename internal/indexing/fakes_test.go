package indexing

import (
	"context"
	"sort"
	"sync"
	"time"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
)

// fakeRelationalStore and fakeVectorStore are in-memory test doubles
// backing each driven port with a small in-memory struct rather than a
// mocking framework.

type fakeRelationalStore struct {
	mu       sync.Mutex
	nextID   int64
	byID     map[int64]*domain.Chunk
	failNext bool
}

func newFakeRelationalStore() *fakeRelationalStore {
	return &fakeRelationalStore{byID: make(map[int64]*domain.Chunk)}
}

// InsertIndexed mimics the transactional write path: the chunk only
// becomes visible if indexFn succeeds, and indexed_at is stamped as part
// of the same "commit".
func (f *fakeRelationalStore) InsertIndexed(ctx context.Context, chunk *domain.Chunk, indexFn func(context.Context) error) error {
	f.mu.Lock()
	if f.failNext {
		f.failNext = false
		f.mu.Unlock()
		return direrrs.ErrRelationalStore
	}
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

func (f *fakeRelationalStore) MarkIndexed(_ context.Context, chunkID int64, model string, dims int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[chunkID]
	if !ok {
		return direrrs.ErrNotFound
	}
	c.EmbeddingModel = model
	c.EmbeddingDimensions = dims
	c.IndexedAt = &at
	return nil
}

func (f *fakeRelationalStore) Touch(_ context.Context, chunkID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[chunkID]; !ok {
		return direrrs.ErrNotFound
	}
	return nil
}

func (f *fakeRelationalStore) GetByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
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

func (f *fakeRelationalStore) ChunkIDs(_ context.Context, documentID string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chunks []*domain.Chunk
	for _, c := range f.byID {
		if c.DocumentID == documentID {
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids, nil
}

func (f *fakeRelationalStore) CountByDocument(_ context.Context, documentID string) (int, error) {
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

func (f *fakeRelationalStore) CountFullTextByDocument(ctx context.Context, documentID string) (int, error) {
	return f.CountByDocument(ctx, documentID)
}

func (f *fakeRelationalStore) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.byID {
		if c.DocumentID == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

type fakeVectorStore struct {
	mu       sync.Mutex
	byID     map[int64]string // chunkID -> documentID
	failNext bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byID: make(map[int64]string)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, chunk *domain.Chunk, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return direrrs.ErrVectorStore
	}
	f.byID[chunk.ChunkID] = chunk.DocumentID
	return nil
}

func (f *fakeVectorStore) Delete(_ context.Context, chunkID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, chunkID)
	return nil
}

func (f *fakeVectorStore) DeleteBatch(_ context.Context, chunkIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range chunkIDs {
		delete(f.byID, id)
	}
	return nil
}

func (f *fakeVectorStore) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, doc := range f.byID {
		if doc == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeVectorStore) CountByDocument(_ context.Context, documentID string) (int, error) {
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

type fakeEmbedder struct {
	dims     int
	failNext bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failNext {
		f.failNext = false
		return nil, direrrs.ErrEmbedding
	}
	vec := make([]float32, f.dims)
	for i := range vec {
		vec[i] = float32(len(text)) / float32(i+1)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Model() string   { return "fake-model" }
