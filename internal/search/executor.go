// Package search implements the Search Executor (single-index hybrid
// search with RRF fusion and a TTL cache) and the Multi-Index Fanout
// (concurrent cross-shard search with global re-ranking).
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/rerr"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

// VectorSearcher is the subset of store.VectorStore the executor depends on.
type VectorSearcher interface {
	CheckDimension(ctx context.Context, indexID string, queryDim int) error
	SimilaritySearch(ctx context.Context, indexID string, queryVec []float32, fetchK, efSearch int, minScore float64) ([]store.VectorHit, error)
}

// LexicalSearcher is the subset of store.LexicalStore the executor depends on.
type LexicalSearcher interface {
	Search(ctx context.Context, indexID, queryText, alternateQuery string, fetchK int) ([]store.LexicalHit, error)
}

// Executor is the Search Executor (C2): hybrid vector+lexical search over a
// single physical index, fused with Reciprocal Rank Fusion and backed by a
// TTL cache.
type Executor struct {
	vectors VectorSearcher
	lexical LexicalSearcher
	cache   *cache.SearchCache

	fetchKMultiplier int
	efSearch         int
	rrfConstant      int
}

// NewExecutor builds an Executor. cache may be nil to disable caching.
func NewExecutor(vectors VectorSearcher, lexical LexicalSearcher, searchCache *cache.SearchCache, fetchKMultiplier, efSearch, rrfConstant int) *Executor {
	return &Executor{
		vectors:          vectors,
		lexical:          lexical,
		cache:            searchCache,
		fetchKMultiplier: fetchKMultiplier,
		efSearch:         efSearch,
		rrfConstant:      rrfConstant,
	}
}

// HybridSearchParams bundles hybrid_search's inputs (spec §4.2).
type HybridSearchParams struct {
	IndexID        string
	QueryText      string
	QueryVector    []float32
	K              int
	SemanticWeight float64
	KeywordWeight  float64
	AlternateQuery string
	MinScore       float64
	FilterHash     string
}

// HybridSearch runs vector + lexical search in parallel against one index
// and fuses the two ranked lists with RRF.
func (e *Executor) HybridSearch(ctx context.Context, p HybridSearchParams) ([]model.ScoredChunk, error) {
	semW, keyW := normalizeWeights(p.SemanticWeight, p.KeywordWeight)

	if e.cache != nil {
		key := cache.SearchKey(p.IndexID, p.QueryText, p.K, semW, keyW, p.FilterHash, p.MinScore)
		if cached, ok := e.cache.GetOrMirror(ctx, key); ok {
			return cached.Chunks, nil
		}
	}

	if err := e.vectors.CheckDimension(ctx, p.IndexID, len(p.QueryVector)); err != nil {
		return nil, err
	}

	fetchK := p.K * e.fetchKMultiplier
	if fetchK < p.K {
		fetchK = p.K
	}

	vecHits, lexHits, err := e.runSubsearches(ctx, p, fetchK)
	if err != nil {
		return nil, err
	}

	fused := e.fuse(vecHits, lexHits, semW, keyW, p.K)

	if e.cache != nil {
		key := cache.SearchKey(p.IndexID, p.QueryText, p.K, semW, keyW, p.FilterHash, p.MinScore)
		e.cache.SetAndMirror(ctx, key, &cache.SearchResult{Chunks: fused})
	}

	return fused, nil
}

// runSubsearches executes the vector and lexical sub-queries. Both run
// independently; a lexical failure degrades to vector-only instead of
// failing the whole request (spec §4.2 step 3's "fall back to semantic-only").
func (e *Executor) runSubsearches(ctx context.Context, p HybridSearchParams, fetchK int) ([]store.VectorHit, []store.LexicalHit, error) {
	type vecResult struct {
		hits []store.VectorHit
		err  error
	}
	type lexResult struct {
		hits []store.LexicalHit
		err  error
	}

	vecCh := make(chan vecResult, 1)
	lexCh := make(chan lexResult, 1)

	go func() {
		hits, err := e.vectors.SimilaritySearch(ctx, p.IndexID, p.QueryVector, fetchK, e.efSearch, p.MinScore)
		vecCh <- vecResult{hits, err}
	}()
	go func() {
		hits, err := e.lexical.Search(ctx, p.IndexID, p.QueryText, p.AlternateQuery, fetchK)
		lexCh <- lexResult{hits, err}
	}()

	vr := <-vecCh
	lr := <-lexCh

	if vr.err != nil {
		return nil, nil, fmt.Errorf("search.HybridSearch: vector search: %w", rerr.NewBackendUnavailable("vector_store", vr.err))
	}
	if lr.err != nil {
		slog.Warn("lexical search failed, degrading to semantic-only", "index_id", p.IndexID, "error", lr.err)
		return vr.hits, nil, nil
	}
	return vr.hits, lr.hits, nil
}

// fuse combines the vector and lexical ranked lists with Reciprocal Rank
// Fusion (the executor's configured constant, 60 by default) and returns
// the top-k.
func (e *Executor) fuse(vecHits []store.VectorHit, lexHits []store.LexicalHit, semW, keyW float64, k int) []model.ScoredChunk {
	k60 := e.rrfConstant
	type entry struct {
		chunk       model.Chunk
		score       float64
		vectorRank  int
		keywordRank int
		simScore    *float64
	}
	byID := make(map[string]*entry)
	order := make([]string, 0, len(vecHits)+len(lexHits))

	for r, h := range vecHits {
		sim := h.Similarity
		e, ok := byID[h.Chunk.ID]
		if !ok {
			e = &entry{chunk: h.Chunk, vectorRank: -1, keywordRank: -1}
			byID[h.Chunk.ID] = e
			order = append(order, h.Chunk.ID)
		}
		e.vectorRank = r
		e.score += semW / float64(k60+r+1)
		e.simScore = &sim
	}
	for r, h := range lexHits {
		ent, ok := byID[h.Chunk.ID]
		if !ok {
			ent = &entry{chunk: h.Chunk, vectorRank: -1, keywordRank: -1}
			byID[h.Chunk.ID] = ent
			order = append(order, h.Chunk.ID)
		}
		ent.keywordRank = r
		ent.score += keyW / float64(k60+r+1)
	}

	scored := make([]model.ScoredChunk, 0, len(order))
	for i, id := range order {
		e := byID[id]
		score := e.score
		scored = append(scored, model.ScoredChunk{
			Chunk:           e.chunk,
			SimilarityScore: &score,
			VectorRank:      e.vectorRank,
			KeywordRank:     e.keywordRank,
			ArrivalOrder:    i,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].SimilarityScore > *scored[j].SimilarityScore
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// SimilaritySearch is the semantic-only fallback path.
func (e *Executor) SimilaritySearch(ctx context.Context, indexID string, queryVec []float32, k int, minScore float64) ([]model.ScoredChunk, error) {
	if err := e.vectors.CheckDimension(ctx, indexID, len(queryVec)); err != nil {
		return nil, err
	}
	hits, err := e.vectors.SimilaritySearch(ctx, indexID, queryVec, k, e.efSearch, minScore)
	if err != nil {
		return nil, fmt.Errorf("search.SimilaritySearch: %w", rerr.NewBackendUnavailable("vector_store", err))
	}
	out := make([]model.ScoredChunk, len(hits))
	for i, h := range hits {
		sim := h.Similarity
		out[i] = model.ScoredChunk{Chunk: h.Chunk, SimilarityScore: &sim, VectorRank: i, KeywordRank: -1, ArrivalOrder: i}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// InvalidateIndex clears cached entries for one index (or all, if indexID
// is empty), mirroring C2's invalidate(index_id?) API.
func (e *Executor) InvalidateIndex(indexID string) {
	if e.cache == nil {
		return
	}
	e.cache.InvalidateIndex(indexID)
}

func normalizeWeights(semantic, keyword float64) (float64, float64) {
	sum := semantic + keyword
	if sum <= 0 {
		return 0.5, 0.5
	}
	return semantic / sum, keyword / sum
}

// filterHash produces a stable hash for an arbitrary filter description, for
// use as the FilterHash field of HybridSearchParams.
func filterHash(filter string) string {
	if filter == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(sum[:])[:16]
}

// FilterHash exposes filterHash to callers building HybridSearchParams.
func FilterHash(filter string) string { return filterHash(filter) }
