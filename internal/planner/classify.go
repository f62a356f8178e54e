// Package planner is the Query Planner (C6): classifies a question and
// decides how the rest of the engine should retrieve for it (spec §4.6).
package planner

import (
	"regexp"
	"strings"
)

// QueryKind is the primary classification a question falls into. Exactly
// one of these applies per request; Contact and DocumentScoped are
// independent modifiers layered on top (see Classification).
type QueryKind string

const (
	KindNormal     QueryKind = "normal"
	KindOccurrence QueryKind = "occurrence"
	KindSummary    QueryKind = "summary"
)

// Classification is the Query Planner's verdict for one request.
type Classification struct {
	Kind           QueryKind
	OccurrenceTerm string // only set when Kind == KindOccurrence

	EffectiveK    int  // k after the summary-query 2x/min-20 multiplier
	EnableAgentic bool // agentic decomposition should run

	IsContact     bool // disables reranking (spec §4.4)
	DocumentNames []string // narrowed active_sources, nil if not document-scoped
}

var (
	occurrenceKeywordPattern = regexp.MustCompile(`(?i)\b(occurrence|find all|show me all|highlight)\b`)
	quotedPhrasePattern      = regexp.MustCompile(`"([^"]+)"`)
	occurrencesOfPattern     = regexp.MustCompile(`(?i)\boccurrences?\s+of\s+(.+)`)
	whereDoesAppearPattern   = regexp.MustCompile(`(?i)\bwhere\s+(?:does|do)\s+(.+?)\s+(?:appear|occur|show up)\b`)
	findAllPattern           = regexp.MustCompile(`(?i)\b(?:find|show me)\s+all\s+(.+)`)

	occurrenceExclusionPattern = regexp.MustCompile(`(?i)\b(what is|what are|how does|explain|describe|tell me about|information about|details about)\b`)

	summaryPattern = regexp.MustCompile(`(?i)\b(summary|summarize|overview|what is this document about|describe|tell me about)\b`)

	contactPattern = regexp.MustCompile(`(?i)\b(email|e-?mail|phone|telephone|contact|cell number|mobile)\b`)

	comparativePattern = regexp.MustCompile(`(?i)\b(compare|comparison|versus|\bvs\.?\b|difference between)\b`)
	multiPartPattern    = regexp.MustCompile(`(?i)\band (?:also|what|how|why|when|where)\b|\?.*\?`)
)

// Classify runs the full classification chain (spec §4.6). k is the
// request's requested chunk count before any summary-query adjustment;
// knownDocuments is the set of registered document names consulted for
// document-scoped detection; agenticEnabled is the request's agentic-mode
// option (spec §4.6 "if enabled").
func Classify(query string, k int, knownDocuments []string, agenticEnabled bool) Classification {
	c := Classification{EffectiveK: k}

	if term, ok := occurrenceTerm(query); ok {
		c.Kind = KindOccurrence
		c.OccurrenceTerm = term
	} else if summaryPattern.MatchString(query) {
		c.Kind = KindSummary
		c.EffectiveK = k * 2
		if c.EffectiveK < 20 {
			c.EffectiveK = 20
		}
		c.EnableAgentic = agenticEnabled
	} else {
		c.Kind = KindNormal
		if agenticEnabled && isComplex(query) {
			c.EnableAgentic = true
		}
	}

	c.IsContact = contactPattern.MatchString(query)
	c.DocumentNames = detectDocumentScoped(query, knownDocuments)

	return c
}

// occurrenceTerm reports whether query matches one of the occurrence
// patterns (and none of the exclusions), returning the extracted term.
func occurrenceTerm(query string) (string, bool) {
	if occurrenceExclusionPattern.MatchString(query) {
		return "", false
	}

	if m := quotedPhrasePattern.FindStringSubmatch(query); m != nil && occurrenceKeywordPattern.MatchString(query) {
		return strings.TrimSpace(m[1]), true
	}
	if m := occurrencesOfPattern.FindStringSubmatch(query); m != nil {
		return cleanTerm(m[1]), true
	}
	if m := whereDoesAppearPattern.FindStringSubmatch(query); m != nil {
		return cleanTerm(m[1]), true
	}
	if m := findAllPattern.FindStringSubmatch(query); m != nil {
		return cleanTerm(m[1]), true
	}
	return "", false
}

// cleanTerm strips a captured term of surrounding quotes, trailing
// punctuation, and a leading article.
func cleanTerm(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".?! ")
	for _, article := range []string{"the ", "a ", "an "} {
		if len(s) > len(article) && strings.EqualFold(s[:len(article)], article) {
			s = s[len(article):]
			break
		}
	}
	return strings.TrimSpace(s)
}

// isComplex approximates spec §4.6's "complex (summary, multi-part,
// comparative)" agentic trigger for non-summary queries.
func isComplex(query string) bool {
	return comparativePattern.MatchString(query) || multiPartPattern.MatchString(query)
}

// detectDocumentScoped fuzzy-matches document names mentioned in the
// question: a multi-word name requires every one of its words to appear in
// the query (spec §4.6).
func detectDocumentScoped(query string, knownDocuments []string) []string {
	lower := strings.ToLower(query)
	var matched []string
	for _, doc := range knownDocuments {
		words := strings.Fields(strings.ToLower(stripExtension(doc)))
		significant := 0
		allPresent := true
		for _, w := range words {
			if len(w) <= 2 {
				continue // skip short noise tokens
			}
			significant++
			if !strings.Contains(lower, w) {
				allPresent = false
				break
			}
		}
		if significant > 0 && allPresent {
			matched = append(matched, doc)
		}
	}
	return matched
}

func stripExtension(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
