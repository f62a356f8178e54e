package search

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

var errBoom = errors.New("boom")

type fakeVectorSearcher struct {
	hits      []store.VectorHit
	dimErr    error
	searchErr error
}

func (f *fakeVectorSearcher) CheckDimension(ctx context.Context, indexID string, queryDim int) error {
	return f.dimErr
}

func (f *fakeVectorSearcher) SimilaritySearch(ctx context.Context, indexID string, queryVec []float32, fetchK, efSearch int, minScore float64) ([]store.VectorHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

type fakeLexicalSearcher struct {
	hits []store.LexicalHit
	err  error
}

func (f *fakeLexicalSearcher) Search(ctx context.Context, indexID, queryText, alternateQuery string, fetchK int) ([]store.LexicalHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestExecutor_HybridSearch_FusesByRank(t *testing.T) {
	vecs := &fakeVectorSearcher{hits: []store.VectorHit{
		{Chunk: model.Chunk{ID: "a", Text: "alpha"}, Similarity: 0.9},
		{Chunk: model.Chunk{ID: "b", Text: "beta"}, Similarity: 0.8},
	}}
	lex := &fakeLexicalSearcher{hits: []store.LexicalHit{
		{Chunk: model.Chunk{ID: "b", Text: "beta"}, Score: 5.0},
		{Chunk: model.Chunk{ID: "c", Text: "gamma"}, Score: 4.0},
	}}

	e := NewExecutor(vecs, lex, nil, 4, 512, 60)
	results, err := e.HybridSearch(context.Background(), HybridSearchParams{
		IndexID: "idx1", QueryText: "q", QueryVector: []float32{0.1, 0.2}, K: 10,
		SemanticWeight: 0.5, KeywordWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 fused chunks, got %d", len(results))
	}
	// "b" appears in both lists (vector rank 1, keyword rank 0) so should score highest.
	if results[0].Chunk.ID != "b" {
		t.Errorf("expected chunk b to rank first, got %s", results[0].Chunk.ID)
	}
}

func TestExecutor_HybridSearch_DegradesOnLexicalFailure(t *testing.T) {
	vecs := &fakeVectorSearcher{hits: []store.VectorHit{
		{Chunk: model.Chunk{ID: "a", Text: "alpha"}, Similarity: 0.9},
	}}
	lex := &fakeLexicalSearcher{err: errBoom}

	e := NewExecutor(vecs, lex, nil, 4, 512, 60)
	results, err := e.HybridSearch(context.Background(), HybridSearchParams{
		IndexID: "idx1", QueryText: "q", QueryVector: []float32{0.1}, K: 10,
		SemanticWeight: 0.5, KeywordWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("expected degrade-to-semantic-only, got error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "a" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestExecutor_HybridSearch_VectorFailureIsFatal(t *testing.T) {
	vecs := &fakeVectorSearcher{searchErr: errBoom}
	lex := &fakeLexicalSearcher{}

	e := NewExecutor(vecs, lex, nil, 4, 512, 60)
	_, err := e.HybridSearch(context.Background(), HybridSearchParams{
		IndexID: "idx1", QueryText: "q", QueryVector: []float32{0.1}, K: 10,
		SemanticWeight: 0.5, KeywordWeight: 0.5,
	})
	if err == nil {
		t.Fatal("expected error when vector search fails")
	}
}

func TestExecutor_HybridSearch_TruncatesToK(t *testing.T) {
	hits := make([]store.VectorHit, 5)
	for i := range hits {
		hits[i] = store.VectorHit{Chunk: model.Chunk{ID: string(rune('a' + i))}, Similarity: 1 - float64(i)*0.1}
	}
	vecs := &fakeVectorSearcher{hits: hits}
	lex := &fakeLexicalSearcher{}

	e := NewExecutor(vecs, lex, nil, 4, 512, 60)
	results, err := e.HybridSearch(context.Background(), HybridSearchParams{
		IndexID: "idx1", QueryText: "q", QueryVector: []float32{0.1}, K: 2,
		SemanticWeight: 0.5, KeywordWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (truncated to k), got %d", len(results))
	}
}

func TestNormalizeWeights(t *testing.T) {
	s, k := normalizeWeights(2, 2)
	if s != 0.5 || k != 0.5 {
		t.Errorf("normalizeWeights(2,2) = (%v,%v), want (0.5,0.5)", s, k)
	}
	s, k = normalizeWeights(0, 0)
	if s != 0.5 || k != 0.5 {
		t.Errorf("normalizeWeights(0,0) should fall back to (0.5,0.5), got (%v,%v)", s, k)
	}
}
