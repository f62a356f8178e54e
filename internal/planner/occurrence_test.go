package planner

import (
	"strings"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func TestFindAllOccurrences_SortedByPageThenPosition(t *testing.T) {
	chunks := []model.Chunk{
		{DocumentID: "d1", Source: "catalog.pdf", Page: 17, StartChar: 0, Text: "Item SKU-4412 restock. Later SKU-4412 again."},
		{DocumentID: "d1", Source: "catalog.pdf", Page: 2, StartChar: 0, Text: "First mention of SKU-4412 in the intro."},
	}

	citations, answer, truncated := FindAllOccurrences(chunks, "SKU-4412", 200)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	if len(citations) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(citations))
	}
	if citations[0].Page != 2 || citations[1].Page != 17 || citations[2].Page != 17 {
		t.Fatalf("expected pages [2,17,17], got [%d,%d,%d]", citations[0].Page, citations[1].Page, citations[2].Page)
	}
	if !strings.Contains(answer, "Found 3 occurrence(s) of 'SKU-4412' in catalog.pdf.") {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestFindAllOccurrences_WholeWordMatchOnly(t *testing.T) {
	chunks := []model.Chunk{
		{DocumentID: "d1", Source: "a.pdf", Page: 1, Text: "A catalog entry mentions catalogs and cataloging separately."},
	}
	citations, _, _ := FindAllOccurrences(chunks, "catalog", 200)
	if len(citations) != 1 {
		t.Fatalf("expected exactly 1 whole-word match, got %d", len(citations))
	}
}

func TestFindAllOccurrences_MultiWordSubstringMatch(t *testing.T) {
	chunks := []model.Chunk{
		{DocumentID: "d1", Source: "a.pdf", Page: 1, Text: "the leave policy applies to all staff; see leave policy appendix"},
	}
	citations, _, _ := FindAllOccurrences(chunks, "leave policy", 200)
	if len(citations) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(citations))
	}
}

func TestFindAllOccurrences_TruncatesAtMaxResults(t *testing.T) {
	chunks := []model.Chunk{
		{DocumentID: "d1", Source: "a.pdf", Page: 1, Text: strings.Repeat("widget ", 10)},
	}
	citations, _, truncated := FindAllOccurrences(chunks, "widget", 3)
	if !truncated {
		t.Fatalf("expected truncated=true")
	}
	if len(citations) != 3 {
		t.Fatalf("expected 3 citations after truncation, got %d", len(citations))
	}
}

func TestFindAllOccurrences_NoMatches(t *testing.T) {
	chunks := []model.Chunk{{DocumentID: "d1", Source: "a.pdf", Page: 1, Text: "nothing relevant here"}}
	citations, answer, truncated := FindAllOccurrences(chunks, "gizmo", 200)
	if len(citations) != 0 || truncated {
		t.Fatalf("expected zero citations, not truncated")
	}
	if !strings.Contains(answer, "No occurrences") {
		t.Fatalf("unexpected answer: %q", answer)
	}
}
