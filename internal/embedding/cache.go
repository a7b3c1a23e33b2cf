package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"

	"dirc-core/internal/direrrs"
)

// CachedProvider wraps a Provider with a Redis-backed cache keyed by
// chunk_hash: identical chunk content always hashes identically, so
// re-ingesting unchanged content (a repair, a re-run after a crash) never
// re-embeds it. An explicit cache layer rather than a store-side
// pre-check, so it composes with any Provider backend.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	prefix string
}

// NewCachedProvider wraps inner with a Redis cache. prefix namespaces keys
// (e.g. "dirc:emb:") to allow sharing a Redis instance with the
// distributed lock implementation.
func NewCachedProvider(inner Provider, client *redis.Client, prefix string) *CachedProvider {
	return &CachedProvider{inner: inner, client: client, prefix: prefix}
}

// Embed looks up text's embedding by its content hash before delegating to
// the wrapped provider; callers that already have a chunk_hash should
// prefer EmbedHashed to avoid rehashing.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := hashContent(text)
	return c.EmbedHashed(ctx, hash, text)
}

// EmbedHashed looks up chunkHash in the cache, falling back to the wrapped
// provider and populating the cache on a miss.
func (c *CachedProvider) EmbedHashed(ctx context.Context, chunkHash, text string) ([]float32, error) {
	key := c.prefix + chunkHash

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		return decodeFloat32s(cached), nil
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("embedding cache: get: %w", errors.Join(err, direrrs.ErrEmbedding))
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, encodeFloat32s(vec), 0).Err(); err != nil {
		// cache-population failure must not fail the embedding itself.
		return vec, nil
	}
	return vec, nil
}

// EmbedBatch embeds each text through the per-item cache path; unlike the
// wrapped Ollama provider this cannot batch remotely either way, so a
// cache hit simply skips the HTTP round trip for that item.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions delegates to the wrapped provider.
func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

// Model delegates to the wrapped provider.
func (c *CachedProvider) Model() string { return c.inner.Model() }

func encodeFloat32s(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// hashContent is a thin wrapper so this package does not need to import
// the enricher package (which depends on domain) just to reuse its hash;
// both use the same SHA-256 content-addressing scheme.
func hashContent(text string) string {
	return sha256Hex(text)
}
