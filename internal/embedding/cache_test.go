package embedding

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirc-core/internal/direrrs"
)

type countingProvider struct {
	calls int
	fail  bool
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls++
	if p.fail {
		return nil, direrrs.ErrEmbedding
	}
	return []float32{float32(len(text)), 2.5, -1}, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int { return 3 }
func (p *countingProvider) Model() string   { return "counting" }

func newTestCache(t *testing.T) (*CachedProvider, *countingProvider) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	inner := &countingProvider{}
	return NewCachedProvider(inner, client, "dirc:emb:"), inner
}

func TestCachedProvider_SecondEmbedHitsCache(t *testing.T) {
	cache, inner := newTestCache(t)

	first, err := cache.Embed(context.Background(), "texto del chunk")
	require.NoError(t, err)
	second, err := cache.Embed(context.Background(), "texto del chunk")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "the second call must be served from the cache")
}

func TestCachedProvider_DistinctTextsMiss(t *testing.T) {
	cache, inner := newTestCache(t)

	_, err := cache.Embed(context.Background(), "uno")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), "dos")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_ProviderFailurePropagates(t *testing.T) {
	cache, inner := newTestCache(t)
	inner.fail = true

	_, err := cache.Embed(context.Background(), "texto")
	require.Error(t, err)
	assert.ErrorIs(t, err, direrrs.ErrEmbedding)
}

func TestCachedProvider_EmbedBatchUsesPerItemCache(t *testing.T) {
	cache, inner := newTestCache(t)

	_, err := cache.Embed(context.Background(), "repetido")
	require.NoError(t, err)

	out, err := cache.EmbedBatch(context.Background(), []string{"repetido", "nuevo"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, inner.calls, "only the uncached item may reach the provider")
}

func TestEncodeDecodeFloat32s_RoundTrip(t *testing.T) {
	vec := []float32{0, 1.5, -3.25, 1e-7}
	assert.Equal(t, vec, decodeFloat32s(encodeFloat32s(vec)))
}
