// Package textutil holds tokenization helpers shared by the lexical store,
// the multi-index fanout's phrase_match_score heuristic, and the citation
// builder's snippet scoring: a combined English/Spanish stopword list,
// content-word filtering, and skip-gram phrase pairing.
package textutil

import (
	"regexp"
	"strings"
)

// Stopwords is the fixed multilingual list referenced by the phrase_match_score
// heuristic (spec §4.3) and by keyword extraction for snippet scoring (spec
// §4.5.3). English and Spanish only; adding a language means extending this
// set, not inventing per-language logic elsewhere.
var Stopwords = buildStopwords()

func buildStopwords() map[string]struct{} {
	words := []string{
		// English
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "must", "shall", "can", "need", "dare",
		"ought", "used", "to", "of", "in", "for", "on", "with", "at", "by",
		"from", "as", "into", "through", "during", "before", "after",
		"above", "below", "between", "under", "again", "further", "then",
		"once", "here", "there", "when", "where", "why", "how", "all",
		"each", "few", "more", "most", "other", "some", "such", "no", "nor",
		"not", "only", "own", "same", "so", "than", "too", "very", "just",
		"and", "but", "if", "or", "because", "until", "while", "although",
		"what", "which", "who", "whom", "this", "that", "these", "those",
		"am", "it", "its", "i", "me", "my", "myself", "we", "our", "ours",
		"you", "your", "he", "him", "his", "she", "her", "they", "them",
		"about", "also", "any", "both", "get", "got", "out", "up",
		"down", "off", "over",
		// Spanish
		"el", "la", "los", "las", "un", "una", "unos", "unas", "de", "del",
		"en", "y", "o", "al", "con", "por", "para", "como", "su", "sus",
		"este", "esta", "estos", "estas", "lo", "le", "les", "te", "se",
		"nos", "os", "mi", "tu", "ti", "que", "qué",
		"es", "son", "fue", "era", "ser", "estar", "han", "había", "habia",
		"uno", "todo", "todos", "toda", "todas",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize splits text into lowercase words, tolerating accented and
// non-ASCII characters.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// IsStopword reports whether w (already lowercase) is in Stopwords.
func IsStopword(w string) bool {
	_, ok := Stopwords[w]
	return ok
}

// ContentWords filters out stopwords and words of length <= minLen.
func ContentWords(words []string, minLen int) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > minLen && !IsStopword(w) {
			out = append(out, w)
		}
	}
	return out
}

// ExtractQueryKeywords returns content-bearing keywords plus skip-gram
// two-word phrases, mirroring the "procedimiento degasado" matching
// "procedimiento de degasado" example: for each non-stopword, pair it with
// the nearest non-stopword within the next three positions.
func ExtractQueryKeywords(query string) []string {
	words := Tokenize(query)
	keywords := ContentWords(words, 2)

	for i, w := range words {
		if IsStopword(w) {
			continue
		}
		for skip := 1; skip <= 3; skip++ {
			if i+skip >= len(words) {
				break
			}
			next := words[i+skip]
			if !IsStopword(next) {
				keywords = append(keywords, w+" "+next)
				break
			}
		}
	}
	return keywords
}
