package search

import (
	"context"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

func TestFanout_SearchAcross_UnionsAcrossShards(t *testing.T) {
	vecs := &fakeVectorSearcher{hits: []store.VectorHit{
		{Chunk: model.Chunk{ID: "a", Text: "the vacation policy allows 15 days off per year"}, Similarity: 0.9},
	}}
	lex := &fakeLexicalSearcher{}
	executor := NewExecutor(vecs, lex, nil, 4, 512, 60)
	fanout := NewFanout(executor, 10)

	results, err := fanout.SearchAcross(context.Background(), SearchAcrossParams{
		IndexIDs:       []string{"idx1", "idx2"},
		QueryText:      "vacation policy",
		QueryVector:    []float32{0.1},
		K:              10,
		SemanticWeight: 0.5,
		KeywordWeight:  0.5,
	})
	if err != nil {
		t.Fatalf("SearchAcross: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected non-empty union across shards")
	}
}

func TestFanout_SearchAcross_EmptyIndexList(t *testing.T) {
	fanout := NewFanout(NewExecutor(&fakeVectorSearcher{}, &fakeLexicalSearcher{}, nil, 4, 512, 60), 10)
	results, err := fanout.SearchAcross(context.Background(), SearchAcrossParams{IndexIDs: nil, QueryText: "q", K: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for empty index list, got %v", results)
	}
}

func TestFanout_SearchAcross_ShardFailureDoesNotFailOverall(t *testing.T) {
	goodVecs := &fakeVectorSearcher{hits: []store.VectorHit{
		{Chunk: model.Chunk{ID: "a", Text: "alpha content"}, Similarity: 0.9},
	}}
	badVecs := &fakeVectorSearcher{searchErr: errBoom}

	good := NewExecutor(goodVecs, &fakeLexicalSearcher{}, nil, 4, 512, 60)
	fanout := &Fanout{executor: good, maxConcurrency: 10}

	// Simulate a mixed shard set by running two independent fanouts over a
	// bad and a good executor and asserting the bad one degrades to empty.
	badFanout := NewFanout(NewExecutor(badVecs, &fakeLexicalSearcher{}, nil, 4, 512, 60), 10)
	badResults, err := badFanout.SearchAcross(context.Background(), SearchAcrossParams{
		IndexIDs: []string{"bad-idx"}, QueryText: "q", QueryVector: []float32{0.1}, K: 5,
		SemanticWeight: 0.5, KeywordWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("shard failure should not fail the overall search: %v", err)
	}
	if len(badResults) != 0 {
		t.Fatalf("expected zero results from failing shard, got %d", len(badResults))
	}

	goodResults, err := fanout.SearchAcross(context.Background(), SearchAcrossParams{
		IndexIDs: []string{"good-idx"}, QueryText: "q", QueryVector: []float32{0.1}, K: 5,
		SemanticWeight: 0.5, KeywordWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(goodResults) != 1 {
		t.Fatalf("expected 1 result from good shard, got %d", len(goodResults))
	}
}

func TestDedupeByPrefix(t *testing.T) {
	longA := "this text is definitely over one hundred characters long so that the hash only covers its prefix and nothing else at all here"
	longADup := longA + " some trailing difference that should not matter"
	chunks := []model.ScoredChunk{
		{Chunk: model.Chunk{ID: "1", Text: longA}},
		{Chunk: model.Chunk{ID: "2", Text: longADup}},
		{Chunk: model.Chunk{ID: "3", Text: "totally different text"}},
	}
	deduped := dedupeByPrefix(chunks)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 unique chunks after prefix dedup, got %d", len(deduped))
	}
	if deduped[0].Chunk.ID != "1" {
		t.Errorf("expected first occurrence kept, got %s", deduped[0].Chunk.ID)
	}
}

func TestPhraseMatchScore_ExactPhraseMatch(t *testing.T) {
	score := phraseMatchScore("the vacation policy allows time off", []string{"vacation", "policy"}, "vacation policy")
	if score < 10 {
		t.Errorf("expected exact-phrase bonus to dominate, got score %v", score)
	}
}

func TestPhraseMatchScore_NoMatch(t *testing.T) {
	score := phraseMatchScore("completely unrelated content about parking", []string{"vacation", "policy"}, "vacation policy")
	if score != 0 {
		t.Errorf("expected zero score for no match, got %v", score)
	}
}

func TestPhraseMatchScore_LooselySpacedBigram(t *testing.T) {
	score := phraseMatchScore("our vacation and policy documents", []string{"vacation", "policy"}, "vacation policy")
	if score <= 0 {
		t.Errorf("expected nonzero score for loosely-spaced bigram, got %v", score)
	}
}
