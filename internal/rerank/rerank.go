// Package rerank is the Reranker (C4): applies cross-encoder re-scoring
// policy on top of the raw provider.RerankProvider adapter — candidate
// expansion, the occurrence/contact-query opt-out, and graceful fallback to
// input order when the reranker is unavailable (spec §4.4).
package rerank

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// MetricsRecorder is the narrow slice of internal/metrics.Metrics that
// Reranker needs, kept local so this package does not import metrics.
type MetricsRecorder interface {
	RecordRerank(available bool, seconds float64)
}

// Provider is the subset of provider.RerankProvider the policy layer needs.
type Provider interface {
	Rerank(ctx context.Context, query string, passages []Passage) ([]Result, error)
}

// Passage mirrors provider.RerankPassage, kept separate so this package does
// not import the REST adapter's wire types directly.
type Passage struct {
	ID   string
	Text string
}

// Result mirrors provider.RerankResult.
type Result struct {
	ID    string
	Score float64
}

// Reranker wraps a Provider with the policy described in spec §4.4.
type Reranker struct {
	provider           Provider
	expansionMultiplier int
	recorder           MetricsRecorder
}

// SetMetrics attaches a Prometheus recorder for reranker availability/
// latency observability (spec §4.4 "On reranker unavailability or error").
func (r *Reranker) SetMetrics(m MetricsRecorder) {
	r.recorder = m
}

// NewReranker builds a Reranker. expansionMultiplier is the "4x top_k"
// candidate-expansion factor (spec §4.4 "Expand retrieval").
func NewReranker(provider Provider, expansionMultiplier int) *Reranker {
	if expansionMultiplier <= 0 {
		expansionMultiplier = 4
	}
	return &Reranker{provider: provider, expansionMultiplier: expansionMultiplier}
}

// ExpansionK returns the candidate count C3 should fetch ahead of reranking:
// 4 * top_k (spec §4.4).
func (r *Reranker) ExpansionK(topK int) int {
	return topK * r.expansionMultiplier
}

// Disabled reports whether reranking should be skipped for this request,
// per spec §4.4: explicit occurrence searches and contact-info lookups may
// hide the answer if a chunk is dropped.
func Disabled(isOccurrenceQuery, isContactQuery bool) bool {
	return isOccurrenceQuery || isContactQuery
}

// Rerank re-scores candidates with the cross-encoder and truncates to topK.
// originalQuery is the pre-translation query when the request used
// alternate_query translation, per spec §4.4 "the original (pre-translation)
// query if available, else the primary query". On provider error or when
// provider is nil, candidates are returned in their input order, truncated
// to topK, and no RerankScore is attached (spec §4.4 "return the input
// order").
func (r *Reranker) Rerank(ctx context.Context, originalQuery string, candidates []model.ScoredChunk, topK int) []model.ScoredChunk {
	if r.provider == nil || len(candidates) == 0 {
		return truncate(candidates, topK)
	}

	passages := make([]Passage, len(candidates))
	for i, c := range candidates {
		passages[i] = Passage{ID: passageID(i), Text: c.Chunk.Text}
	}

	start := time.Now()
	results, err := r.provider.Rerank(ctx, originalQuery, passages)
	if r.recorder != nil {
		r.recorder.RecordRerank(err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("rerank.Rerank: provider unavailable, passing through input order", "error", err)
		return truncate(candidates, topK)
	}

	scoreByID := make(map[string]float64, len(results))
	for _, res := range results {
		scoreByID[res.ID] = res.Score
	}

	out := make([]model.ScoredChunk, len(candidates))
	copy(out, candidates)
	for i := range out {
		if s, ok := scoreByID[passageID(i)]; ok {
			score := s
			out[i].RerankScore = &score
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := rerankScoreOf(out[i]), rerankScoreOf(out[j])
		return si > sj
	})

	return truncate(out, topK)
}

func rerankScoreOf(c model.ScoredChunk) float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return -1 // candidates the reranker didn't score sort after scored ones
}

func truncate(chunks []model.ScoredChunk, topK int) []model.ScoredChunk {
	if topK > 0 && len(chunks) > topK {
		return chunks[:topK]
	}
	return chunks
}

func passageID(i int) string {
	return strconv.Itoa(i)
}
