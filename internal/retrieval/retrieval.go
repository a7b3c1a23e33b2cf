// Package retrieval implements the hybrid retrieval service:
// independent semantic and keyword legs fanned out concurrently, fused by
// Reciprocal Rank Fusion, and optionally re-ranked by a cross-encoder.
//
// The two legs of a hybrid query fan out concurrently and fail
// independently: one failed leg degrades the response to the surviving
// leg's results, and only both legs failing surfaces an error.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dirc-core/internal/direrrs"
	"dirc-core/internal/domain"
	"dirc-core/internal/metrics"
	"dirc-core/internal/rerank"
)

// defaultRRFK is the k constant in 1/(k+rank); 60 is the value most
// commonly cited in the RRF literature.
const defaultRRFK = 60.0

// Per-leg deadlines: embedding and vector-store calls each get 30s, BM25
// queries get 10s. A hybrid call inherits the longer of its two legs
// since each leg carries its own deadline.
const (
	embedTimeout   = 30 * time.Second
	vectorTimeout  = 30 * time.Second
	keywordTimeout = 10 * time.Second
)

// Leg names used in Response.DegradedLeg diagnostics.
const (
	legSemantic = "semantic"
	legKeyword  = "keyword"
)

// Options configures a single search call.
type Options struct {
	Technique domain.Technique
	TopK      int
	Filters   domain.Filters
	Rerank    bool
	RRFK      float64
}

// DefaultOptions returns hybrid retrieval of the top 10 results with no
// filters and no re-ranking.
func DefaultOptions() Options {
	return Options{Technique: domain.TechniqueHybrid, TopK: 10, RRFK: defaultRRFK}
}

// Service answers search() calls across the semantic and keyword indexes.
type Service struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	keyword  KeywordSearcher
	reranker rerank.ReRanker
}

// New constructs a Service. reranker may be rerank.Noop{} to disable
// re-ranking outright.
func New(embedder QueryEmbedder, vectors VectorSearcher, keyword KeywordSearcher, reranker rerank.ReRanker) *Service {
	if reranker == nil {
		reranker = rerank.Noop{}
	}
	return &Service{embedder: embedder, vectors: vectors, keyword: keyword, reranker: reranker}
}

// Response is the unified search response shape: the fused/ranked results
// plus the bookkeeping a caller needs to render
// them (echoed query and technique, timing, and whether re-ranking
// actually applied). DegradedLeg names the hybrid leg that failed when the
// other leg's results were returned alone; it is empty on a fully healthy
// run and for the single-primitive techniques.
type Response struct {
	Results         []domain.RankedHit
	Query           string
	Technique       domain.Technique
	TotalResults    int
	ExecutionTimeMs int64
	Reranked        bool
	DegradedLeg     string
}

// Search dispatches to Semantic, Keyword, or Hybrid per opts.Technique and
// returns the bare hit list. Re-ranker failure degrades gracefully to the
// pre-rerank ordering — callers that need to know whether re-ranking
// actually took effect should use SearchResponse.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]domain.RankedHit, error) {
	resp, err := s.SearchResponse(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SearchResponse runs the requested technique and wraps the result in the full response
// shape: highlighted snippets, execution time, and a reranked flag that is
// false whenever re-ranking was requested but the re-ranker failed or was
// skipped.
func (s *Service) SearchResponse(ctx context.Context, query string, opts Options) (Response, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return Response{}, fmt.Errorf("retrieval: search: %w", direrrs.ErrInput)
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	hits, degraded, err := s.runTechnique(ctx, query, opts)
	if err != nil {
		return Response{}, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	reranked := false
	if opts.Rerank {
		rerankN := opts.TopK
		if rerankN > 20 {
			rerankN = 20
		}
		if rerankN > len(hits) {
			rerankN = len(hits)
		}
		head, tail := hits[:rerankN], hits[rerankN:]
		if rerankedHead, rerr := s.reranker.Rerank(ctx, query, head); rerr == nil {
			hits = append(rerankedHead, tail...)
			sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
			reranked = true
		}
	}

	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}

	for i := range hits {
		hits[i].Highlight = Highlight(query, hits[i].Text)
	}

	elapsed := time.Since(start)
	metrics.RetrievalLatency.WithLabelValues(string(opts.Technique)).Observe(elapsed.Seconds())

	return Response{
		Results:         hits,
		Query:           query,
		Technique:       opts.Technique,
		TotalResults:    len(hits),
		ExecutionTimeMs: elapsed.Milliseconds(),
		Reranked:        reranked,
		DegradedLeg:     degraded,
	}, nil
}

// runTechnique dispatches to Semantic, Keyword, or Hybrid with no
// re-ranking or highlighting applied.
func (s *Service) runTechnique(ctx context.Context, query string, opts Options) ([]domain.RankedHit, string, error) {
	switch opts.Technique {
	case domain.TechniqueSemantic:
		hits, err := s.Semantic(ctx, query, opts.TopK, opts.Filters)
		return hits, "", err
	case domain.TechniqueKeyword:
		hits, err := s.Keyword(ctx, query, opts.TopK, opts.Filters)
		return hits, "", err
	case domain.TechniqueHybrid, "":
		return s.hybrid(ctx, query, opts.TopK, opts.Filters, rrfKOrDefault(opts.RRFK))
	default:
		return nil, "", fmt.Errorf("retrieval: unknown technique %q: %w", opts.Technique, direrrs.ErrInput)
	}
}

func rrfKOrDefault(k float64) float64 {
	if k <= 0 {
		return defaultRRFK
	}
	return k
}

// Semantic embeds query and performs a nearest-neighbor search. The filter
// is compiled down to the vector store's own language, which can express
// only equality predicates over the metadata copied onto each vector row:
// year/month and entity filters are silently dropped here by contract (a
// technique that cannot enforce a filter drops it rather than erroring).
// Scores arrive from the store already mapped to [0,1] via 1 - distance/2.
func (s *Service) Semantic(ctx context.Context, query string, topK int, filters domain.Filters) ([]domain.RankedHit, error) {
	embedCtx, cancelEmbed := context.WithTimeout(ctx, embedTimeout)
	defer cancelEmbed()
	vec, err := s.embedder.Embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", errors.Join(deadlineAware(err), direrrs.ErrEmbedding))
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, vectorTimeout)
	defer cancelSearch()
	hits, err := s.vectors.Search(searchCtx, vec, topK, compileVectorFilter(filters))
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", errors.Join(deadlineAware(err), direrrs.ErrVectorStore))
	}
	return hits, nil
}

// compileVectorFilter keeps the equality predicates the vector store
// recognizes and drops everything it cannot express (year, month,
// entities).
func compileVectorFilter(f domain.Filters) domain.VectorFilter {
	return domain.VectorFilter{
		DocumentID:     f.DocumentID,
		SourceID:       f.SourceID,
		JurisdictionID: f.JurisdictionID,
		Section:        f.Section,
		Language:       f.Language,
		Topic:          f.Topic,
		HasTables:      f.HasTables,
		HasAmounts:     f.HasAmounts,
	}
}

// Keyword runs the full-text leg, which can enforce every Filters field
// since they are ordinary SQL predicates against the chunks table. The
// store's unbounded BM25-style scores are normalized to [0,1] by min-max
// over the returned page.
func (s *Service) Keyword(ctx context.Context, query string, topK int, filters domain.Filters) ([]domain.RankedHit, error) {
	searchCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	defer cancel()
	hits, err := s.keyword.SearchKeyword(searchCtx, query, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieval: keyword search: %w", errors.Join(deadlineAware(err), direrrs.ErrKeywordStore))
	}
	return minMaxNormalize(hits), nil
}

// Hybrid fans the semantic and keyword legs out concurrently and fuses
// them with Reciprocal Rank Fusion:
//
//	score(c) = 1/(rrf_k + rank_semantic) + 1/(rrf_k + rank_keyword)
//
// normalized to [0,1] across the fused set. A chunk present in only one
// leg contributes only that leg's term. When exactly one leg fails, the
// other leg's results are returned alone (use SearchResponse to learn
// which leg degraded); only both legs failing surfaces an error.
func (s *Service) Hybrid(ctx context.Context, query string, topK int, filters domain.Filters, rrfK float64) ([]domain.RankedHit, error) {
	hits, _, err := s.hybrid(ctx, query, topK, filters, rrfK)
	return hits, err
}

func (s *Service) hybrid(ctx context.Context, query string, topK int, filters domain.Filters, rrfK float64) ([]domain.RankedHit, string, error) {
	// Each leg fetches twice the requested page so fusion has enough
	// candidates to rank well.
	fanOutK := topK * 2

	var (
		wg                        sync.WaitGroup
		semanticHits, keywordHits []domain.RankedHit
		semanticErr, keywordErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		semanticHits, semanticErr = s.Semantic(ctx, query, fanOutK, filters)
	}()
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = s.Keyword(ctx, query, fanOutK, filters)
	}()
	wg.Wait()

	switch {
	case semanticErr != nil && keywordErr != nil:
		return nil, "", fmt.Errorf("retrieval: hybrid: both legs failed: %w", errors.Join(semanticErr, keywordErr))
	case semanticErr != nil:
		return fuseRRF(nil, keywordHits, rrfK), legSemantic, nil
	case keywordErr != nil:
		return fuseRRF(semanticHits, nil, rrfK), legKeyword, nil
	}

	return fuseRRF(semanticHits, keywordHits, rrfK), "", nil
}

// fuseRRF combines two ranked lists by chunk ID using Reciprocal Rank
// Fusion and returns the fused list sorted descending by score,
// normalized to [0,1].
func fuseRRF(semantic, keyword []domain.RankedHit, rrfK float64) []domain.RankedHit {
	byID := make(map[int64]*domain.RankedHit)
	scores := make(map[int64]float64)

	for rank, h := range semantic {
		hit := h
		byID[hit.ChunkID] = &hit
		scores[hit.ChunkID] += 1.0 / (rrfK + float64(rank+1))
	}
	for rank, h := range keyword {
		if _, ok := byID[h.ChunkID]; !ok {
			hit := h
			byID[hit.ChunkID] = &hit
		}
		scores[h.ChunkID] += 1.0 / (rrfK + float64(rank+1))
	}

	fused := make([]domain.RankedHit, 0, len(byID))
	maxScore := 0.0
	for id, score := range scores {
		if score > maxScore {
			maxScore = score
		}
		hit := *byID[id]
		hit.Score = score
		fused = append(fused, hit)
	}

	if maxScore > 0 {
		for i := range fused {
			fused[i].Score = fused[i].Score / maxScore
		}
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	return fused
}

// minMaxNormalize rescales a page of hits to [0,1]: the lowest score maps
// to 0 and the highest to 1. A page whose scores are all equal maps to 1
// across the board, preserving "at least one value equal to 1".
func minMaxNormalize(hits []domain.RankedHit) []domain.RankedHit {
	if len(hits) == 0 {
		return hits
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}

	out := make([]domain.RankedHit, len(hits))
	for i, h := range hits {
		if max == min {
			h.Score = 1
		} else {
			h.Score = (h.Score - min) / (max - min)
		}
		out[i] = h
	}
	return out
}

// deadlineAware tags a context-deadline failure with the timeout sentinel
// so callers can treat it like the corresponding store error.
func deadlineAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(err, direrrs.ErrTimeout)
	}
	return err
}
