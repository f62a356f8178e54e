package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RerankProvider calls an external cross-encoder reranking service over
// REST. Unlike embeddings and generation, Vertex AI has no first-party
// reranker, so this adapter targets a generic scoring endpoint (the same
// request/response shape used by Vertex AI Ranking API and most hosted
// cross-encoder services): POST {query, passages: [{id, text}]} ->
// {scores: [{id, score}]}.
type RerankProvider struct {
	endpoint string
	client   *http.Client
}

// NewRerankProvider creates a RerankProvider targeting the given endpoint.
func NewRerankProvider(endpoint string, client *http.Client) *RerankProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &RerankProvider{endpoint: endpoint, client: client}
}

// RerankPassage is one candidate passage submitted for scoring.
type RerankPassage struct {
	ID   string
	Text string
}

// RerankResult is a single scored passage, id matching the input ID.
type RerankResult struct {
	ID    string
	Score float64
}

type rerankRequest struct {
	Query    string          `json:"query"`
	Passages []rerankPassage `json:"passages"`
}

type rerankPassage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type rerankResponse struct {
	Scores []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Rerank scores each passage against query, returning rerank_score in [0,1]
// per passage. Retries up to 3 times on 429/RESOURCE_EXHAUSTED with the same
// backoff schedule as the other provider adapters.
func (p *RerankProvider) Rerank(ctx context.Context, query string, passages []RerankPassage) ([]RerankResult, error) {
	return withRetry(ctx, "reranker", "Rerank", func() ([]RerankResult, error) {
		return p.doRerank(ctx, query, passages)
	})
}

func (p *RerankProvider) doRerank(ctx context.Context, query string, passages []RerankPassage) ([]RerankResult, error) {
	reqPassages := make([]rerankPassage, len(passages))
	for i, pg := range passages {
		reqPassages[i] = rerankPassage{ID: pg.ID, Text: pg.Text}
	}

	body, err := json.Marshal(rerankRequest{Query: query, Passages: reqPassages})
	if err != nil {
		return nil, fmt.Errorf("provider.Rerank: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider.Rerank: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider.Rerank: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider.Rerank: status %d: %s", resp.StatusCode, respBody)
	}

	var rerankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("provider.Rerank: decode: %w", err)
	}

	results := make([]RerankResult, len(rerankResp.Scores))
	for i, s := range rerankResp.Scores {
		results[i] = RerankResult{ID: s.ID, Score: s.Score}
	}
	return results, nil
}

// HealthCheck validates the reranker service connection with a single
// trivial passage.
func (p *RerankProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Rerank(ctx, "health check", []RerankPassage{{ID: "probe", Text: "health check"}})
	if err != nil {
		return fmt.Errorf("reranker health check failed: %w", err)
	}
	return nil
}
