package citation

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/textutil"
)

const maxSnippetLen = 500

var pageMarkerStripPattern = regexp.MustCompile(`---\s*Page\s+\d+\s*---`)

// buildSnippet produces a <=500-char, query-relevant excerpt of chunk.Text
// (spec §4.5.3). For English queries against a non-English chunk with a
// translation available, the snippet is generated from the translation
// instead (spec §4.5.3 step 5).
func (b *Builder) buildSnippet(ctx context.Context, chunk model.Chunk, p BuildParams) string {
	text := pageMarkerStripPattern.ReplaceAllString(chunk.Text, "")
	text = strings.TrimSpace(text)

	if isEnglish(p.QueryLanguage) && chunk.Language != "" && chunk.Language != "eng" && chunk.TextEnglish != "" {
		text = pageMarkerStripPattern.ReplaceAllString(chunk.TextEnglish, "")
		text = strings.TrimSpace(text)
	}

	if len(text) <= maxSnippetLen {
		return text
	}

	if snippet, ok := b.semanticSnippet(ctx, text, p.Query, p.QueryEmbedding); ok {
		return snippet
	}

	return keywordSnippet(text, p.Query)
}

func isEnglish(lang string) bool {
	return lang == "" || lang == "eng" || strings.EqualFold(lang, "en")
}

// semanticSnippet scores sentences by cosine similarity to the query
// embedding plus a keyword-overlap boost, then concatenates the top
// sentences until ~500 chars (spec §4.5.3 step 3). Returns ok=false if no
// embedder is configured or the embedding call fails, so the caller falls
// back to the keyword-centered snippet.
func (b *Builder) semanticSnippet(ctx context.Context, text, query string, queryVec []float32) (string, bool) {
	if b.embedder == nil || len(queryVec) == 0 {
		return "", false
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return "", false
	}

	vecs, err := b.embedder.EmbedQuery(ctx, sentences)
	if err != nil || len(vecs) != len(sentences) {
		slog.Warn("citation.semanticSnippet: sentence embedding failed, falling back to keyword snippet", "error", err)
		return "", false
	}

	queryWords := textutil.ExtractQueryKeywords(query)

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		sim := cosine(queryVec, vecs[i])
		boost := keywordBoost(s, queryWords)
		ranked[i] = scored{idx: i, score: sim + boost}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	selected := make(map[int]bool)
	var total int
	for _, r := range ranked {
		if total+len(sentences[r.idx]) > maxSnippetLen && total > 0 {
			break
		}
		selected[r.idx] = true
		total += len(sentences[r.idx]) + 1
		if total >= maxSnippetLen {
			break
		}
	}
	if len(selected) == 0 {
		return "", false
	}

	var ordered []string
	for i, s := range sentences {
		if selected[i] {
			ordered = append(ordered, s)
		}
	}
	out := strings.Join(ordered, " ")
	return bookend(out, ordered[0] != sentences[0], ordered[len(ordered)-1] != sentences[len(sentences)-1]), true
}

// keywordBoost rewards a sentence for containing query keywords, capped at
// +0.2 (spec §4.5.3 step 3).
func keywordBoost(sentence string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(sentence)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	boost := float64(hits) * 0.05
	if boost > 0.2 {
		boost = 0.2
	}
	return boost
}

// keywordSnippet extracts query keywords, finds their occurrences (exact,
// plus a length-5 stem-prefix match for keywords of 5+ chars), takes the
// median occurrence position as center, expands +-250 chars, then widens to
// the nearest sentence boundary (spec §4.5.3 step 4).
func keywordSnippet(text, query string) string {
	keywords := textutil.ContentWords(textutil.Tokenize(query), 2)
	lower := strings.ToLower(text)

	var positions []int
	for _, kw := range keywords {
		positions = append(positions, findAll(lower, kw)...)
		if len(kw) >= 5 {
			positions = append(positions, findAll(lower, kw[:5])...)
		}
	}

	center := len(text) / 2
	if len(positions) > 0 {
		sort.Ints(positions)
		center = positions[len(positions)/2]
	}

	start := center - 250
	end := center + 250
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}

	start = expandToSentenceStart(text, start)
	end = expandToSentenceEnd(text, end)

	snippet := text[start:end]
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	return bookend(snippet, start > 0, end < len(text))
}

func findAll(haystack, needle string) []int {
	if needle == "" {
		return nil
	}
	var out []int
	from := 0
	for {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			break
		}
		out = append(out, from+i)
		from += i + len(needle)
	}
	return out
}

func expandToSentenceStart(text string, pos int) int {
	for i := pos; i > 0; i-- {
		if isSentenceBoundary(text, i-1) {
			return i
		}
	}
	return 0
}

func expandToSentenceEnd(text string, pos int) int {
	for i := pos; i < len(text); i++ {
		if isSentenceBoundary(text, i) {
			return i + 1
		}
	}
	return len(text)
}

func isSentenceBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return false
	}
	c := text[i]
	return (c == '.' || c == '!' || c == '?') && (i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n')
}

// bookend prepends/appends "..." when the snippet does not begin/end at a
// sentence boundary of the source (spec §4.5.3).
func bookend(snippet string, truncatedStart, truncatedEnd bool) string {
	if truncatedStart {
		snippet = "..." + snippet
	}
	if truncatedEnd {
		snippet = snippet + "..."
	}
	return snippet
}

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "vs": true, "etc": true, "inc": true,
	"co": true, "ltd": true, "e.g": true, "i.e": true, "fig": true, "no": true,
}

// splitSentences splits text on sentence-ending punctuation, respecting a
// small abbreviation list and decimal numbers (spec §4.5.3 step 3).
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		cur.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if isDecimalPoint(runes, i) {
			continue
		}
		if r == '.' && endsWithAbbreviation(cur.String()) {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' {
			continue
		}
		s := strings.TrimSpace(cur.String())
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isDecimalPoint(runes []rune, i int) bool {
	if runes[i] != '.' {
		return false
	}
	return i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1])
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func endsWithAbbreviation(s string) bool {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	return abbreviations[last]
}

// cosine computes cosine similarity between two equal-length vectors,
// returning 0 for mismatched or zero-length inputs.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
