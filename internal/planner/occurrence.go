package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

const occurrenceContextRadius = 40 // spec §4.6: "80-char context window"

type occurrenceHit struct {
	chunk model.Chunk
	pos   int
}

// FindAllOccurrences enumerates every match of term across chunks: a
// whole-word match for a single-token term, a substring match for a
// multi-word phrase, both case-insensitive. Results are sorted by
// (page, image_index, start_char) and truncated at maxResults (spec §4.6).
func FindAllOccurrences(chunks []model.Chunk, term string, maxResults int) ([]model.Citation, string, bool) {
	multiWord := strings.Contains(strings.TrimSpace(term), " ")

	var hits []occurrenceHit
	for _, c := range chunks {
		for _, pos := range matchPositions(c.Text, term, multiWord) {
			hits = append(hits, occurrenceHit{chunk: c, pos: pos})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.chunk.Page != b.chunk.Page {
			return a.chunk.Page < b.chunk.Page
		}
		if ai, bi := imageIndexOf(a.chunk), imageIndexOf(b.chunk); ai != bi {
			return ai < bi
		}
		return a.chunk.StartChar+a.pos < b.chunk.StartChar+b.pos
	})

	truncated := false
	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
		truncated = true
	}

	citations := make([]model.Citation, len(hits))
	sourceCounts := make(map[string]int)
	for i, h := range hits {
		page := h.chunk.Page
		if page <= 0 {
			page = 1
		}
		idx := h.chunk.ChunkIndex
		citations[i] = model.Citation{
			ID:                   i + 1,
			Source:               h.chunk.Source,
			DocumentID:           h.chunk.DocumentID,
			Page:                 page,
			Snippet:              contextWindow(h.chunk.Text, h.pos, len(term)),
			FullText:             h.chunk.Text,
			SourceConfidence:     1.0,
			PageConfidence:       1.0,
			PageExtractionMethod: model.PageMethodMetadata,
			ContentType:          "text",
			ChunkIndex:           &idx,
		}
		sourceCounts[h.chunk.Source]++
	}

	return citations, synthesizeAnswer(term, sourceCounts, truncated), truncated
}

func imageIndexOf(c model.Chunk) int {
	if c.ImageRef != nil {
		return c.ImageRef.ImageIndex
	}
	return 0
}

func matchPositions(text, term string, multiWord bool) []int {
	if term == "" {
		return nil
	}
	lower := strings.ToLower(text)
	lowerTerm := strings.ToLower(term)

	var positions []int
	if multiWord {
		from := 0
		for {
			i := strings.Index(lower[from:], lowerTerm)
			if i < 0 {
				break
			}
			positions = append(positions, from+i)
			from += i + len(lowerTerm)
		}
		return positions
	}

	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(lowerTerm) + `\b`)
	for _, loc := range pattern.FindAllStringIndex(lower, -1) {
		positions = append(positions, loc[0])
	}
	return positions
}

// contextWindow extracts an ~80-char window centered on the match,
// bookending with "..." when the window does not reach the chunk boundary.
func contextWindow(text string, pos, termLen int) string {
	start := pos - occurrenceContextRadius
	end := pos + termLen + occurrenceContextRadius
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet = snippet + "..."
	}
	return snippet
}

// synthesizeAnswer builds the human-readable summary described in spec
// §4.6 scenario 3: "Found 3 occurrence(s) of 'SKU-4412' in catalog.pdf."
// When matches span multiple sources, each is listed with its own count.
func synthesizeAnswer(term string, sourceCounts map[string]int, truncated bool) string {
	total := 0
	for _, n := range sourceCounts {
		total += n
	}
	if total == 0 {
		return fmt.Sprintf("No occurrences of '%s' were found.", term)
	}

	var answer string
	if len(sourceCounts) == 1 {
		for source := range sourceCounts {
			answer = fmt.Sprintf("Found %d occurrence(s) of '%s' in %s.", total, term, source)
		}
	} else {
		sources := make([]string, 0, len(sourceCounts))
		for source := range sourceCounts {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		parts := make([]string, len(sources))
		for i, source := range sources {
			parts[i] = fmt.Sprintf("%s (%d)", source, sourceCounts[source])
		}
		answer = fmt.Sprintf("Found %d occurrence(s) of '%s' across %s.", total, term, strings.Join(parts, ", "))
	}
	if truncated {
		answer += " Results were truncated to the first matches."
	}
	return answer
}
