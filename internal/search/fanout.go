package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/textutil"
)

// MetricsRecorder is the narrow slice of internal/metrics.Metrics that
// Fanout needs, kept local so this package does not import metrics.
type MetricsRecorder interface {
	RecordShardLatency(indexID string, seconds float64)
	RecordShardError(indexID string)
}

// Fanout is the Multi-Index Fanout (C3): dispatches a hybrid search across
// N physical indexes concurrently and returns one globally re-ranked list.
type Fanout struct {
	executor       *Executor
	maxConcurrency int
	recorder       MetricsRecorder
}

// NewFanout builds a Fanout over the given Executor.
func NewFanout(executor *Executor, maxConcurrency int) *Fanout {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Fanout{executor: executor, maxConcurrency: maxConcurrency}
}

// SetMetrics attaches a Prometheus recorder for per-shard latency/error
// observability (spec §5 "intra-request concurrency").
func (f *Fanout) SetMetrics(r MetricsRecorder) {
	f.recorder = r
}

// SearchAcrossParams bundles search_across's inputs (spec §4.3).
type SearchAcrossParams struct {
	IndexIDs       []string
	QueryText      string
	QueryVector    []float32
	K              int
	SemanticWeight float64
	KeywordWeight  float64
	AlternateQuery string
	MinScore       float64
	FilterHash     string
}

// SearchAcross executes one hybrid search per index concurrently (bounded
// worker pool, max concurrency = min(|index_ids|, 10)), unions, deduplicates,
// and globally re-ranks the results.
func (f *Fanout) SearchAcross(ctx context.Context, p SearchAcrossParams) ([]model.ScoredChunk, error) {
	if len(p.IndexIDs) == 0 {
		return nil, nil
	}

	perShardK := p.K
	if perShardK < 10 {
		perShardK = 10
	}

	concurrency := len(p.IndexIDs)
	if concurrency > f.maxConcurrency {
		concurrency = f.maxConcurrency
	}

	results := make([][]model.ScoredChunk, len(p.IndexIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, indexID := range p.IndexIDs {
		i, indexID := i, indexID
		g.Go(func() error {
			shardStart := time.Now()
			chunks, err := f.executor.HybridSearch(gctx, HybridSearchParams{
				IndexID:        indexID,
				QueryText:      p.QueryText,
				QueryVector:    p.QueryVector,
				K:              perShardK,
				SemanticWeight: p.SemanticWeight,
				KeywordWeight:  p.KeywordWeight,
				AlternateQuery: p.AlternateQuery,
				MinScore:       p.MinScore,
				FilterHash:     p.FilterHash,
			})
			if f.recorder != nil {
				f.recorder.RecordShardLatency(indexID, time.Since(shardStart).Seconds())
			}
			if err != nil {
				// A shard error degrades to zero results for that shard; the
				// overall search still succeeds if any shard succeeds.
				if f.recorder != nil {
					f.recorder.RecordShardError(indexID)
				}
				return nil
			}
			results[i] = chunks
			return nil
		})
	}
	// errgroup.Go never returns a non-nil error from the closures above, so
	// Wait cannot fail; shard failures are absorbed per-shard instead.
	_ = g.Wait()

	union := dedupeByPrefix(flatten(results))
	queryWords := textutil.ContentWords(textutil.Tokenize(p.QueryText), 2)
	for i := range union {
		union[i].PhraseMatchScore = phraseMatchScore(union[i].Chunk.Text, queryWords, p.QueryText)
	}

	sort.SliceStable(union, func(i, j int) bool {
		if union[i].PhraseMatchScore != union[j].PhraseMatchScore {
			return union[i].PhraseMatchScore > union[j].PhraseMatchScore
		}
		si, sj := scoreOf(union[i]), scoreOf(union[j])
		if si != sj {
			return si > sj
		}
		return union[i].ArrivalOrder < union[j].ArrivalOrder
	})

	if len(union) > p.K {
		union = union[:p.K]
	}
	return union, nil
}

func scoreOf(c model.ScoredChunk) float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	if c.SimilarityScore != nil {
		return *c.SimilarityScore
	}
	return 0
}

func flatten(results [][]model.ScoredChunk) []model.ScoredChunk {
	var out []model.ScoredChunk
	arrival := 0
	for _, shard := range results {
		for _, c := range shard {
			c.ArrivalOrder = arrival
			arrival++
			out = append(out, c)
		}
	}
	return out
}

// dedupeByPrefix keeps the first occurrence of each chunk, identified by a
// hash of the first 100 characters of its text (spec §4.3 step 4).
func dedupeByPrefix(chunks []model.ScoredChunk) []model.ScoredChunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]model.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		key := prefixHash(c.Chunk.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func prefixHash(text string) string {
	prefix := text
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])
}

// phraseMatchScore implements the spec §4.3 heuristic: exact full-phrase
// match +10, adjacent bigrams +3 each, loosely-spaced bigrams +1.5 each,
// individual content words +0.5 each.
func phraseMatchScore(content string, queryWords []string, rawQuery string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	lowerContent := strings.ToLower(content)
	var score float64

	trimmedQuery := strings.TrimSpace(strings.ToLower(rawQuery))
	if trimmedQuery != "" && strings.Contains(lowerContent, trimmedQuery) {
		score += 10
	}

	contentWords := textutil.Tokenize(content)
	positions := make(map[string][]int)
	for i, w := range contentWords {
		positions[w] = append(positions[w], i)
	}

	for i := 0; i < len(queryWords)-1; i++ {
		a, b := queryWords[i], queryWords[i+1]
		if hasAdjacent(positions, a, b, 1) {
			score += 3
		} else if hasAdjacent(positions, a, b, 2) {
			score += 1.5
		}
	}

	for _, w := range queryWords {
		if _, ok := positions[w]; ok {
			score += 0.5
		}
	}

	return score
}

// hasAdjacent reports whether word a is followed by word b within maxGap
// positions in the tokenized content.
func hasAdjacent(positions map[string][]int, a, b string, maxGap int) bool {
	for _, pa := range positions[a] {
		for _, pb := range positions[b] {
			gap := pb - pa
			if gap > 0 && gap <= maxGap {
				return true
			}
		}
	}
	return false
}
