package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) GenerateContent(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	return s.response, s.err
}

func TestDecompose_ParsesJSONArray(t *testing.T) {
	gen := &stubGenerator{response: `["what is the warranty term", "what is the return policy"]`}
	out := Decompose(context.Background(), gen, "compare warranty and return policy", 3)
	if len(out) != 2 {
		t.Fatalf("expected 2 sub-queries, got %d: %v", len(out), out)
	}
}

func TestDecompose_TruncatesToMax(t *testing.T) {
	gen := &stubGenerator{response: `["a", "b", "c", "d"]`}
	out := Decompose(context.Background(), gen, "q", 2)
	if len(out) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(out))
	}
}

func TestDecompose_FallsBackToPlainTextList(t *testing.T) {
	gen := &stubGenerator{response: "1. first question\n2. second question"}
	out := Decompose(context.Background(), gen, "q", 3)
	if len(out) != 2 || out[0] != "first question" || out[1] != "second question" {
		t.Fatalf("unexpected parse result: %v", out)
	}
}

func TestDecompose_GeneratorErrorReturnsOriginalQuery(t *testing.T) {
	gen := &stubGenerator{err: errors.New("unavailable")}
	out := Decompose(context.Background(), gen, "original question", 3)
	if len(out) != 1 || out[0] != "original question" {
		t.Fatalf("expected fallback to original query, got %v", out)
	}
}

func TestDecompose_NilGeneratorReturnsOriginalQuery(t *testing.T) {
	out := Decompose(context.Background(), nil, "original question", 3)
	if len(out) != 1 || out[0] != "original question" {
		t.Fatalf("expected original query passthrough, got %v", out)
	}
}

func score(f float64) *float64 { return &f }

func TestMergeSubQueryResults_DedupesAndBoosts(t *testing.T) {
	shared := model.ScoredChunk{Chunk: model.Chunk{Text: "shared content about warranty terms"}, SimilarityScore: score(0.5)}
	unique1 := model.ScoredChunk{Chunk: model.Chunk{Text: "unique content A"}, SimilarityScore: score(0.9)}
	unique2 := model.ScoredChunk{Chunk: model.Chunk{Text: "unique content B"}, SimilarityScore: score(0.8)}

	merged := MergeSubQueryResults([][]model.ScoredChunk{
		{shared, unique1},
		{shared, unique2},
	}, 10)

	if len(merged) != 3 {
		t.Fatalf("expected 3 deduped chunks, got %d", len(merged))
	}

	var boosted *model.ScoredChunk
	for i := range merged {
		if merged[i].Chunk.Text == shared.Chunk.Text {
			boosted = &merged[i]
		}
	}
	if boosted == nil {
		t.Fatalf("shared chunk missing from merged result")
	}
	if *boosted.SimilarityScore <= 0.5 {
		t.Fatalf("expected boosted score above original 0.5, got %v", *boosted.SimilarityScore)
	}
}

func TestMergeSubQueryResults_CapsAtMaxTotal(t *testing.T) {
	var batches [][]model.ScoredChunk
	for i := 0; i < 5; i++ {
		batches = append(batches, []model.ScoredChunk{{Chunk: model.Chunk{Text: string(rune('a' + i))}, SimilarityScore: score(float64(i))}})
	}
	merged := MergeSubQueryResults(batches, 3)
	if len(merged) != 3 {
		t.Fatalf("expected cap at 3, got %d", len(merged))
	}
}
