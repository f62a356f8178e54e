package answer

import (
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func TestDedup_GroupsBySourceAndPage(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, Snippet: "shared snippet", FullText: "weak full text", SourceConfidence: 0.5, PageConfidence: 0.5},
		{Source: "a.pdf", Page: 1, Snippet: "shared snippet", FullText: "strong full text", SourceConfidence: 1.0, PageConfidence: 1.0},
		{Source: "b.pdf", Page: 3, Snippet: "distinct"},
	}
	out := Dedup(citations)
	if len(out) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(out))
	}
	if out[0].FullText != "strong full text" {
		t.Fatalf("expected higher-confidence member kept, got %q", out[0].FullText)
	}
}

func TestDedup_PrefersImageRefWithinGroup(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, Snippet: "text only", SourceConfidence: 1.0, PageConfidence: 1.0},
		{Source: "a.pdf", Page: 1, Snippet: "image backed", SourceConfidence: 0.3, PageConfidence: 0.3, ImageRef: &model.ImageRef{Page: 1}},
	}
	out := Dedup(citations)
	if len(out) != 1 || out[0].ImageRef == nil {
		t.Fatalf("expected image-backed citation to win despite lower confidence, got %+v", out)
	}
}

func TestDedup_RenumbersSequentially(t *testing.T) {
	citations := []model.Citation{
		{ID: 9, Source: "a.pdf", Page: 1},
		{ID: 2, Source: "b.pdf", Page: 1},
	}
	out := Dedup(citations)
	if out[0].ID != 1 || out[1].ID != 2 {
		t.Fatalf("expected sequential ids starting at 1, got %d, %d", out[0].ID, out[1].ID)
	}
}

func TestDedup_Idempotent(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, Snippet: "x"},
		{Source: "a.pdf", Page: 1, Snippet: "y"},
		{Source: "b.pdf", Page: 2, Snippet: "z"},
	}
	once := Dedup(citations)
	twice := Dedup(once)
	if len(once) != len(twice) {
		t.Fatalf("expected dedup to be idempotent in length, got %d vs %d", len(once), len(twice))
	}
}
