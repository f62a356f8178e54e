package answer

import (
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func sim(f float64) *float64 { return &f }

// Scenario 6 from spec §8: phrase match survives, bare single-word matches
// without context corroboration are rejected entirely.
func TestRank_RejectsIrrelevantCitations(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 4, Snippet: "the leave policy applies to all staff", SimilarityScore: sim(0.8)},
		{Source: "a.pdf", Page: 11, Snippet: "remember to leave lights on when you go", SimilarityScore: sim(0.7)},
		{Source: "a.pdf", Page: 12, Snippet: "our policy change email went out today", SimilarityScore: sim(0.6)},
	}
	out := Rank(citations, "leave policy")
	if len(out) != 1 {
		t.Fatalf("expected only the phrase-match citation to survive, got %d: %+v", len(out), out)
	}
	if out[0].Page != 4 {
		t.Fatalf("expected surviving citation to be page 4, got %d", out[0].Page)
	}
}

func TestRank_TopCitationAlwaysHundredPercent(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, Snippet: "vacation policy allows 15 days", SimilarityScore: sim(0.9)},
		{Source: "a.pdf", Page: 2, Snippet: "vacation policy requires manager approval", SimilarityScore: sim(0.85)},
	}
	out := Rank(citations, "vacation policy")
	if len(out) == 0 {
		t.Fatalf("expected surviving citations")
	}
	if out[0].SimilarityPercentage != 100.0 {
		t.Fatalf("expected top citation at 100%%, got %v", out[0].SimilarityPercentage)
	}
}

func TestRank_RerankScoreDrivesOrderingWhenCoverageMet(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, Snippet: "warranty terms apply for 12 months", RerankScore: sim(0.4), SimilarityScore: sim(0.9)},
		{Source: "a.pdf", Page: 2, Snippet: "warranty terms are void if modified", RerankScore: sim(0.9), SimilarityScore: sim(0.5)},
	}
	out := Rank(citations, "warranty terms")
	if out[0].Page != 2 {
		t.Fatalf("expected rerank_score 0.9 citation to rank first, got page %d", out[0].Page)
	}
	if out[0].SimilarityPercentage != 100.0 {
		t.Fatalf("expected best rerank score at 100%%, got %v", out[0].SimilarityPercentage)
	}
}

func TestRank_RenumbersIDs(t *testing.T) {
	citations := []model.Citation{
		{ID: 50, Source: "a.pdf", Page: 1, Snippet: "warranty terms here", SimilarityScore: sim(0.9)},
		{ID: 51, Source: "a.pdf", Page: 2, Snippet: "warranty terms there", SimilarityScore: sim(0.6)},
	}
	out := Rank(citations, "warranty terms")
	for i, c := range out {
		if c.ID != i+1 {
			t.Fatalf("expected sequential ids, got %d at position %d", c.ID, i)
		}
	}
}

func TestRank_EmptyInputReturnsEmpty(t *testing.T) {
	out := Rank(nil, "anything")
	if len(out) != 0 {
		t.Fatalf("expected empty output for empty input")
	}
}

func TestRank_CloselyPackedRegimeDecrements(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, Snippet: "widget assembly instructions detail", SimilarityScore: sim(0.40)},
		{Source: "a.pdf", Page: 2, Snippet: "widget assembly instructions continued", SimilarityScore: sim(0.39)},
		{Source: "a.pdf", Page: 3, Snippet: "widget assembly instructions final steps", SimilarityScore: sim(0.38)},
	}
	out := Rank(citations, "widget assembly instructions")
	if out[0].SimilarityPercentage != 100 {
		t.Fatalf("expected first at 100%%, got %v", out[0].SimilarityPercentage)
	}
	if out[1].SimilarityPercentage >= out[0].SimilarityPercentage {
		t.Fatalf("expected decreasing percentages, got %v then %v", out[0].SimilarityPercentage, out[1].SimilarityPercentage)
	}
}
