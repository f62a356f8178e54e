package citation

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

const (
	minValidPage = 1
	maxValidPage = 10000
)

var (
	textMarkerPattern  = regexp.MustCompile(`---\s*Page\s+(\d+)\s*---`)
	pageOfMPattern     = regexp.MustCompile(`(?i)Page\s+(\d+)\s+of\s+\d+`)
	pageRangePattern   = regexp.MustCompile(`(?i)Page\s+(\d+)\s*-\s*\d+`)
	docNamePagePattern = regexp.MustCompile(`(?i)[\w.\- ]+\s+Page\s+(\d+)\b`)
	footerDashPattern  = regexp.MustCompile(`(?m)^\s*-\s*(\d+)\s*-\s*$`)
	footerPgPattern    = regexp.MustCompile(`(?i)\bpg\.?\s*(\d+)\b`)
	footerPaginaPattern = regexp.MustCompile(`(?i)p[aá]gina\s+(\d+)\b`)
)

// resolvePage runs the page-extraction tier chain (spec §4.5.2), validating
// every candidate against the document's known page count (when available)
// and the hard range [1, 10000] before accepting it.
func (b *Builder) resolvePage(chunk model.Chunk) (int, float64, model.PageExtractionMethod) {
	totalPages, haveTotal := 0, false
	if b.pageCounts != nil {
		totalPages, haveTotal = b.pageCounts.PageCount(chunk.DocumentID)
	}
	valid := func(p int) bool {
		if p < minValidPage || p > maxValidPage {
			return false
		}
		if haveTotal && totalPages > 0 && p > totalPages {
			return false
		}
		return true
	}

	// Tier 1: explicit text marker, highest confidence because it is
	// authored directly into the parsed text by the PDF pipeline.
	if p, ok := textMarkerPage(chunk.Text); ok && valid(p) {
		return p, 0.98, model.PageMethodTextMarker
	}

	// Tier 2: ingestion-stored page with confidence >= 0.7, including the
	// image-specific fast paths.
	if p, conf, ok := ingestionPage(chunk); ok && valid(p) {
		if crossValidate(chunk, p) {
			conf += 0.1
			if conf > 1.0 {
				conf = 1.0
			}
		}
		method := model.PageMethodMetadata
		if chunk.ContentType == "image_ocr" {
			method = model.PageMethodImageMetadata
		}
		return p, conf, method
	}

	// Tier 3: character-position overlap against page_blocks.
	if p, ok := charPositionPage(chunk); ok && valid(p) {
		return p, 1.0, model.PageMethodCharPosition
	}

	// Tier 4: source_page metadata. Already at the ceiling confidence, so
	// cross-validation here has nothing to raise; it is only meaningful for
	// tier 2's ingestion-confidence range.
	if chunk.Metadata.SourcePage != nil {
		if p := *chunk.Metadata.SourcePage; valid(p) {
			return p, 1.0, model.PageMethodMetadata
		}
	}

	// Tier 5: bag-of-words Jaccard similarity against page_blocks' text. The
	// Chunk/PageBlock data model (spec §3) carries only character offsets
	// for page blocks, not their text, so this store cannot reproduce the
	// source's content-based Jaccard match; it is a no-op here and falls
	// through to tier 6.

	// Tier 6: other text patterns, in descending specificity.
	if p, conf, ok := textPatternPage(chunk.Text); ok && valid(p) {
		return p, conf, model.PageMethodHeuristic
	}

	// Tier 7: chunk_index heuristic (chunk_index+1, capped at the document's
	// total page count), only when the page count is known.
	if p, ok := heuristicPage(chunk, totalPages, haveTotal); ok && valid(p) {
		return p, 0.3, model.PageMethodHeuristic
	}

	// Tier 8: fallback.
	if haveTotal && totalPages > 1 {
		slog.Warn("citation.resolvePage: falling back to page 1 for a multi-page document",
			"document_id", chunk.DocumentID, "chunk_index", chunk.ChunkIndex, "total_pages", totalPages)
	}
	return 1, 0.1, model.PageMethodFallback
}

func textMarkerPage(text string) (int, bool) {
	m := textMarkerPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return atoiOK(m[1])
}

// ingestionPage reads the page ingestion stored directly on the chunk,
// requiring confidence >= 0.7 (spec §4.5.2 tier 2). Image chunks consult
// image_ref.page / image_page first, corroborated by start_char < 2000 or
// image_index in {0,1} when the candidate is page 1.
func ingestionPage(chunk model.Chunk) (int, float64, bool) {
	if chunk.ContentType == "image_ocr" {
		if p, ok := imagePageCandidate(chunk); ok {
			conf := 0.85
			if p == 1 && (chunk.StartChar < 2000 || imageIndexIsEarly(chunk)) {
				conf = 0.9
			}
			return p, conf, true
		}
	}

	conf := 0.0
	if chunk.Metadata.PageConfidence != nil {
		conf = *chunk.Metadata.PageConfidence
	}
	if conf < 0.7 {
		return 0, 0, false
	}
	page := chunk.Page
	if chunk.Metadata.Page != nil {
		page = *chunk.Metadata.Page
	}
	if page <= 0 {
		return 0, 0, false
	}
	return page, conf, true
}

func imagePageCandidate(chunk model.Chunk) (int, bool) {
	if chunk.ImageRef != nil && chunk.ImageRef.Page > 0 {
		return chunk.ImageRef.Page, true
	}
	if chunk.Metadata.ImagePage != nil && *chunk.Metadata.ImagePage > 0 {
		return *chunk.Metadata.ImagePage, true
	}
	return 0, false
}

func imageIndexIsEarly(chunk model.Chunk) bool {
	if chunk.ImageRef != nil {
		return chunk.ImageRef.ImageIndex == 0 || chunk.ImageRef.ImageIndex == 1
	}
	if chunk.Metadata.ImageIndex != nil {
		return *chunk.Metadata.ImageIndex == 0 || *chunk.Metadata.ImageIndex == 1
	}
	return false
}

// charPositionPage finds the page_block whose [start,end) range has the
// greatest overlap with the chunk's own [start,end) range, requiring the
// overlap to cover at least 10% of the chunk (spec §4.5.2 tier 3).
func charPositionPage(chunk model.Chunk) (int, bool) {
	if len(chunk.PageBlocks) == 0 {
		return 0, false
	}
	chunkLen := chunk.EndChar - chunk.StartChar
	if chunkLen <= 0 {
		return 0, false
	}

	bestPage, bestOverlap := 0, 0
	for _, pb := range chunk.PageBlocks {
		start := max(chunk.StartChar, pb.StartChar)
		end := min(chunk.EndChar, pb.EndChar)
		overlap := end - start
		if overlap > bestOverlap {
			bestOverlap = overlap
			bestPage = pb.Page
		}
	}
	if bestPage == 0 {
		return 0, false
	}
	if float64(bestOverlap)/float64(chunkLen) < 0.10 {
		return 0, false
	}
	return bestPage, true
}

// textPatternPage tries the remaining text patterns in descending order of
// specificity (spec §4.5.2 tier 6).
func textPatternPage(text string) (int, float64, bool) {
	if m := pageOfMPattern.FindStringSubmatch(text); m != nil {
		if p, ok := atoiOK(m[1]); ok {
			return p, 0.85, true
		}
	}
	if m := pageRangePattern.FindStringSubmatch(text); m != nil {
		if p, ok := atoiOK(m[1]); ok {
			return p, 0.75, true
		}
	}
	if m := docNamePagePattern.FindStringSubmatch(text); m != nil {
		if p, ok := atoiOK(m[1]); ok {
			return p, 0.65, true
		}
	}
	if m := footerPaginaPattern.FindStringSubmatch(text); m != nil {
		if p, ok := atoiOK(m[1]); ok {
			return p, 0.5, true
		}
	}
	if m := footerPgPattern.FindStringSubmatch(text); m != nil {
		if p, ok := atoiOK(m[1]); ok {
			return p, 0.45, true
		}
	}
	if m := footerDashPattern.FindStringSubmatch(text); m != nil {
		if p, ok := atoiOK(m[1]); ok {
			return p, 0.4, true
		}
	}
	return 0, 0, false
}

// heuristicPage estimates a page as chunk_index+1, clamped to
// [1, totalPages]. It applies only when the page count is known, and it
// does not scale the chunk index by the document's chunk count.
func heuristicPage(chunk model.Chunk, totalPages int, haveTotal bool) (int, bool) {
	if !haveTotal || totalPages <= 0 {
		return 0, false
	}
	p := chunk.ChunkIndex + 1
	if p > totalPages {
		p = totalPages
	}
	if p < 1 {
		p = 1
	}
	return p, true
}

// crossValidate collects the corroborating signals described in spec
// §4.5.2's validate_page_assignment and reports whether at least two of
// them independently agree with candidate.
func crossValidate(chunk model.Chunk, candidate int) bool {
	signals := 0
	if chunk.Metadata.SourcePage != nil && *chunk.Metadata.SourcePage == candidate {
		signals++
	}
	if p := chunk.Page; p == candidate {
		signals++
	} else if chunk.Metadata.Page != nil && *chunk.Metadata.Page == candidate {
		signals++
	}
	if p, ok := charPositionPage(chunk); ok && p == candidate {
		signals++
	}
	if p, ok := textMarkerPage(chunk.Text); ok && p == candidate {
		signals++
	}
	return signals >= 2
}

func atoiOK(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
