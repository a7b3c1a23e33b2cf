package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"dirc-core/internal/domain"
)

// HTTPReRanker calls an external cross-encoder scoring endpoint (e.g. a
// served sentence-transformers cross-encoder) with the query and each
// candidate's text, then sorts by the returned score. Grounded on the
// same HTTP-collaborator idiom used by embedding.OllamaProvider, applied
// here to a ranking endpoint instead of an embedding one.
type HTTPReRanker struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPReRanker constructs a re-ranker against endpoint, which must
// accept {"query": "...", "passages": ["...", ...]} and return
// {"scores": [...]} in input order.
func NewHTTPReRanker(endpoint string) *HTTPReRanker {
	return &HTTPReRanker{endpoint: endpoint, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores every hit against query and returns them sorted
// descending by the cross-encoder's score.
func (r *HTTPReRanker) Rerank(ctx context.Context, query string, hits []domain.RankedHit) ([]domain.RankedHit, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Text
	}

	body, err := json.Marshal(rerankRequest{Query: query, Passages: passages})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	if len(result.Scores) != len(hits) {
		return nil, fmt.Errorf("rerank: score count %d does not match hit count %d", len(result.Scores), len(hits))
	}

	out := make([]domain.RankedHit, len(hits))
	copy(out, hits)
	for i := range out {
		out[i].Score = result.Scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
