package answer

import (
	"strings"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func TestPackContext_PlacesImageSectionFirst(t *testing.T) {
	citations := []model.Citation{
		{Source: "a.pdf", Page: 1, FullText: "plain text chunk", ContentType: "text"},
		{Source: "b.pdf", Page: 2, FullText: "ocr'd label", ContentType: "image"},
	}
	packed := PackContext(citations, 10_000)
	if !strings.HasPrefix(packed.Text, imageSectionHeader) {
		n := min(60, len(packed.Text))
		t.Fatalf("expected image section to lead, got: %q", packed.Text[:n])
	}
}

func TestPackContext_NoTruncationUnderBudget(t *testing.T) {
	citations := []model.Citation{{Source: "a.pdf", Page: 1, FullText: "short content", ContentType: "text"}}
	packed := PackContext(citations, 10_000)
	if packed.Truncated {
		t.Fatalf("did not expect truncation")
	}
}

func TestPackContext_TruncatesMainSectionPreservingImageSection(t *testing.T) {
	longText := strings.Repeat("filler sentence about the product. ", 2000)
	citations := []model.Citation{
		{Source: "img.pdf", Page: 1, FullText: "critical ocr content", ContentType: "image"},
		{Source: "a.pdf", Page: 1, FullText: longText, ContentType: "text"},
	}
	packed := PackContext(citations, 200)
	if !packed.Truncated {
		t.Fatalf("expected truncation")
	}
	if !strings.Contains(packed.Text, "critical ocr content") {
		t.Fatalf("expected image section preserved verbatim")
	}
}

func TestPackContext_BoundaryTruncation(t *testing.T) {
	text := "First sentence here. Second sentence follows. " + strings.Repeat("Padding text to exceed the budget. ", 50)
	citations := []model.Citation{{Source: "a.pdf", Page: 1, FullText: text, ContentType: "text"}}
	packed := PackContext(citations, 40)
	if packed.Truncated && strings.HasSuffix(strings.TrimSpace(packed.Text), "follows") {
		t.Fatalf("expected truncation to land on a sentence/paragraph boundary, not mid-word")
	}
}
