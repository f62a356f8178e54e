package answer

import (
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// groupKey is (source, page) per spec §4.7.3.
type groupKey struct {
	source string
	page   int
}

// Dedup groups citations by (source, page), keeps the highest-ranked
// citation per group (has_image_ref first, then source_confidence +
// page_confidence), merges snippets within the group, and renumbers IDs
// sequentially from 1 in the surviving citations' relative order.
func Dedup(citations []model.Citation) []model.Citation {
	order := make([]groupKey, 0, len(citations))
	groups := make(map[groupKey][]model.Citation)

	for _, c := range citations {
		k := groupKey{source: c.Source, page: c.Page}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := make([]model.Citation, 0, len(order))
	for _, k := range order {
		out = append(out, mergeGroup(groups[k]))
	}

	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

func mergeGroup(group []model.Citation) model.Citation {
	best := group[0]
	for _, c := range group[1:] {
		if higherRank(c, best) {
			best = c
		}
	}
	best.Snippet = mergeSnippets(group, best.Snippet)
	return best
}

// higherRank implements the (has_image_ref, source_confidence +
// page_confidence) tuple comparison from spec §4.7.3.
func higherRank(a, b model.Citation) bool {
	aImage, bImage := hasImage(a), hasImage(b)
	if aImage != bImage {
		return aImage
	}
	return (a.SourceConfidence + a.PageConfidence) > (b.SourceConfidence + b.PageConfidence)
}

func hasImage(c model.Citation) bool {
	return c.ImageRef != nil
}

// mergeSnippets prefers whichever group member's snippet carries the
// strongest structural marker (a page marker, or both an image and page
// marker), falling back to concatenating distinct snippets up to 500 chars
// with " ... " separators (spec §4.7.3).
func mergeSnippets(group []model.Citation, fallback string) string {
	for _, c := range group {
		if strings.Contains(c.Snippet, "--- Page") {
			return c.Snippet
		}
	}
	for _, c := range group {
		lower := strings.ToLower(c.Snippet)
		if strings.Contains(lower, "image") && strings.Contains(lower, "page") {
			return c.Snippet
		}
	}

	seen := make(map[string]struct{})
	var distinct []string
	for _, c := range group {
		s := strings.TrimSpace(c.Snippet)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		distinct = append(distinct, s)
	}
	if len(distinct) <= 1 {
		return fallback
	}

	merged := strings.Join(distinct, " ... ")
	if len(merged) > 500 {
		merged = merged[:500]
	}
	return merged
}
