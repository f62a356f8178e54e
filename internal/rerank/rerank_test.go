package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

type stubProvider struct {
	results []Result
	err     error
}

func (s *stubProvider) Rerank(ctx context.Context, query string, passages []Passage) ([]Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func chunkSet(texts ...string) []model.ScoredChunk {
	out := make([]model.ScoredChunk, len(texts))
	for i, t := range texts {
		out[i] = model.ScoredChunk{Chunk: model.Chunk{ID: t, Text: t}}
	}
	return out
}

func TestRerank_SortsByScoreDescending(t *testing.T) {
	p := &stubProvider{results: []Result{
		{ID: "0", Score: 0.2},
		{ID: "1", Score: 0.9},
		{ID: "2", Score: 0.5},
	}}
	r := NewReranker(p, 4)

	out := r.Rerank(context.Background(), "q", chunkSet("a", "b", "c"), 3)

	if out[0].Chunk.ID != "b" || out[1].Chunk.ID != "c" || out[2].Chunk.ID != "a" {
		t.Fatalf("unexpected order: %v %v %v", out[0].Chunk.ID, out[1].Chunk.ID, out[2].Chunk.ID)
	}
	if *out[0].RerankScore != 0.9 {
		t.Fatalf("expected top score 0.9, got %v", *out[0].RerankScore)
	}
}

func TestRerank_TruncatesToTopK(t *testing.T) {
	p := &stubProvider{results: []Result{{ID: "0", Score: 0.1}, {ID: "1", Score: 0.2}, {ID: "2", Score: 0.3}}}
	r := NewReranker(p, 4)

	out := r.Rerank(context.Background(), "q", chunkSet("a", "b", "c"), 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
}

func TestRerank_ProviderErrorPassesThroughInputOrder(t *testing.T) {
	p := &stubProvider{err: errors.New("backend down")}
	r := NewReranker(p, 4)

	in := chunkSet("a", "b", "c")
	out := r.Rerank(context.Background(), "q", in, 3)

	for i := range out {
		if out[i].Chunk.ID != in[i].Chunk.ID {
			t.Fatalf("expected input order preserved on error, got %v", out[i].Chunk.ID)
		}
		if out[i].RerankScore != nil {
			t.Fatalf("expected no rerank score set on fallback")
		}
	}
}

func TestRerank_NilProviderPassesThrough(t *testing.T) {
	r := NewReranker(nil, 4)
	in := chunkSet("a", "b")
	out := r.Rerank(context.Background(), "q", in, 5)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
}

func TestExpansionK(t *testing.T) {
	r := NewReranker(nil, 4)
	if got := r.ExpansionK(5); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
}

func TestDisabled(t *testing.T) {
	cases := []struct {
		occurrence, contact, want bool
	}{
		{false, false, false},
		{true, false, true},
		{false, true, true},
		{true, true, true},
	}
	for _, c := range cases {
		if got := Disabled(c.occurrence, c.contact); got != c.want {
			t.Fatalf("Disabled(%v, %v) = %v, want %v", c.occurrence, c.contact, got, c.want)
		}
	}
}
