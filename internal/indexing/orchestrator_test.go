package indexing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
	"dirc-core/internal/lock"
)

func newTestOrchestrator() (*Orchestrator, *fakeRelationalStore, *fakeVectorStore, *fakeEmbedder) {
	rel := newFakeRelationalStore()
	vec := newFakeVectorStore()
	emb := &fakeEmbedder{dims: 8}
	o := New(rel, vec, emb, lock.NewSemaphoreLocker(), nil)
	return o, rel, vec, emb
}

func TestIndexDocument_AllChunksCommit(t *testing.T) {
	o, rel, vec, _ := newTestOrchestrator()
	chunks := []domain.Chunk{
		{ChunkIndex: 0, Text: "DECRETO 1 apruébase"},
		{ChunkIndex: 1, Text: "RESOLUCION 2 dispone"},
	}

	result := o.IndexDocument(context.Background(), "doc-1", chunks)

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ChunksIndexed)

	n, err := rel.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	vn, err := vec.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, vn)
}

func TestIndexDocument_EmbeddingFailureRollsBackWholeDocument(t *testing.T) {
	_, rel, vec, emb := newTestOrchestrator()
	chunks := []domain.Chunk{
		{ChunkIndex: 0, Text: "first chunk"},
		{ChunkIndex: 1, Text: "second chunk"},
		{ChunkIndex: 2, Text: "third chunk"},
	}

	// fail embedding on the second chunk only
	wrapped := &countingFailEmbedder{fakeEmbedder: emb, failOnCall: 2}
	o2 := New(rel, vec, wrapped, lock.NewSemaphoreLocker(), nil)

	result := o2.IndexDocument(context.Background(), "doc-2", chunks)

	require.Error(t, result.Err)
	assert.True(t, result.RollbackApplied)
	assert.False(t, result.Success)

	n, err := rel.CountByDocument(context.Background(), "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "all chunks for the failed document must be rolled back")

	vn, err := vec.CountByDocument(context.Background(), "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 0, vn)
}

type countingFailEmbedder struct {
	*fakeEmbedder
	failOnCall int
	calls      int
}

func (c *countingFailEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.calls == c.failOnCall {
		return nil, direrrs.ErrEmbedding
	}
	return c.fakeEmbedder.Embed(ctx, text)
}

func TestIndexDocument_ConcurrentCallsForSameDocumentFailFast(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	locker := lock.NewSemaphoreLocker()
	o = New(o.relational, o.vectors, o.embedder, locker, nil)

	release, ok, err := locker.TryAcquire(context.Background(), "doc-3")
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	result := o.IndexDocument(context.Background(), "doc-3", []domain.Chunk{{ChunkIndex: 0, Text: "x"}})
	assert.True(t, errors.Is(result.Err, direrrs.ErrBusy))
}

func TestIndexDocument_CancelledContextLeavesNoState(t *testing.T) {
	o, rel, vec, _ := newTestOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks := []domain.Chunk{{ChunkIndex: 0, Text: "DECRETO 1"}, {ChunkIndex: 1, Text: "RESOLUCION 2"}}
	result := o.IndexDocument(ctx, "doc-cancelled", chunks)

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, direrrs.ErrCancelled)

	n, err := rel.CountByDocument(context.Background(), "doc-cancelled")
	require.NoError(t, err)
	assert.Zero(t, n)
	vn, err := vec.CountByDocument(context.Background(), "doc-cancelled")
	require.NoError(t, err)
	assert.Zero(t, vn)
}

func TestIndexDocument_CrossDocumentConcurrencyDoesNotInterleaveChunkIndices(t *testing.T) {
	o, rel, vec, _ := newTestOrchestrator()

	makeChunks := func() []domain.Chunk {
		chunks := make([]domain.Chunk, 10)
		for i := range chunks {
			chunks[i] = domain.Chunk{ChunkIndex: i, Text: "chunk text"}
		}
		return chunks
	}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	docIDs := []string{"doc-a", "doc-b"}
	for i, id := range docIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = o.IndexDocument(context.Background(), id, makeChunks())
		}(i, id)
	}
	wg.Wait()

	for i, id := range docIDs {
		require.NoError(t, results[i].Err)
		assert.True(t, results[i].Success)

		all, err := rel.GetByDocument(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, all, 10)

		seen := make(map[int]bool, 10)
		for _, c := range all {
			seen[c.ChunkIndex] = true
		}
		for idx := 0; idx < 10; idx++ {
			assert.True(t, seen[idx], "document %s missing chunk_index %d", id, idx)
		}

		n, err := vec.CountByDocument(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	}
}

func TestIndexDocument_VectorOnlyPathSkipsRelationalStore(t *testing.T) {
	o, rel, vec, _ := newTestOrchestrator()
	chunks := []domain.Chunk{
		{ChunkIndex: 0, Text: "texto migrado uno"},
		{ChunkIndex: 1, Text: "texto migrado dos"},
	}

	result := o.IndexDocumentWithOptions(context.Background(), "doc-legacy", chunks, DocumentOptions{TripleIndexing: false})

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ChunksIndexed)

	n, err := rel.CountByDocument(context.Background(), "doc-legacy")
	require.NoError(t, err)
	assert.Zero(t, n, "the legacy path must not write the relational store")

	vn, err := vec.CountByDocument(context.Background(), "doc-legacy")
	require.NoError(t, err)
	assert.Equal(t, 2, vn)
}

func TestVerify_InconsistentWhenChunkIndicesNotDense(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	// matching counts across all three stores, but a hole at chunk_index 1
	chunks := []domain.Chunk{{ChunkIndex: 0, Text: "a"}, {ChunkIndex: 2, Text: "b"}}
	result := o.IndexDocument(context.Background(), "doc-gap", chunks)
	require.True(t, result.Success)

	report, err := o.Verify(context.Background(), "doc-gap")
	require.NoError(t, err)
	assert.Equal(t, report.RelationalCount, report.VectorCount)
	assert.False(t, report.Consistent)
}

func TestVerify_ConsistentWhenCountsMatch(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	chunks := []domain.Chunk{{ChunkIndex: 0, Text: "a"}, {ChunkIndex: 1, Text: "b"}}
	result := o.IndexDocument(context.Background(), "doc-4", chunks)
	require.True(t, result.Success)

	report, err := o.Verify(context.Background(), "doc-4")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 2, report.RelationalCount)
	assert.Equal(t, 2, report.VectorCount)
}

func TestVerify_InconsistentWhenVectorMissing(t *testing.T) {
	o, rel, vec, _ := newTestOrchestrator()
	chunks := []domain.Chunk{{ChunkIndex: 0, Text: "a"}}
	result := o.IndexDocument(context.Background(), "doc-5", chunks)
	require.True(t, result.Success)

	all, err := rel.GetByDocument(context.Background(), "doc-5")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NoError(t, vec.Delete(context.Background(), all[0].ChunkID))

	report, err := o.Verify(context.Background(), "doc-5")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
}

func TestRepair_RestoresConsistencyFromRelationalSourceOfTruth(t *testing.T) {
	o, rel, vec, _ := newTestOrchestrator()
	chunks := []domain.Chunk{{ChunkIndex: 0, Text: "a"}, {ChunkIndex: 1, Text: "b"}}
	result := o.IndexDocument(context.Background(), "doc-6", chunks)
	require.True(t, result.Success)

	require.NoError(t, vec.DeleteByDocument(context.Background(), "doc-6"))
	vn, _ := vec.CountByDocument(context.Background(), "doc-6")
	require.Equal(t, 0, vn)

	report, err := o.Repair(context.Background(), "doc-6")
	require.NoError(t, err)
	assert.True(t, report.Consistent)

	rn, _ := rel.CountByDocument(context.Background(), "doc-6")
	assert.Equal(t, rn, report.RelationalCount)
}
