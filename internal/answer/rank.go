package answer

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/textutil"
)

// Scoring-regime thresholds (spec Design Notes §9: "heuristic constants
// chosen by the source... implementers should keep the thresholds as named
// configuration values").
const (
	rrfMaxThreshold      = 0.05
	rrfSpreadThreshold   = 0.01
	mixedRatioThreshold  = 50.0
	mixedHighThreshold   = 0.5
	mixedLowThreshold    = 0.01
	closelyPackedRelRange = 0.15
	closelyPackedDecrement = 5.0
	closelyPackedFloor   = 70.0
	distanceMaxThreshold = 1.0
	distanceMinThreshold = 0.5

	minRerankCoverage = 0.5
	rerankPercentFloor = 5.0
	relevanceContextWindow = 30
)

type scoredCitation struct {
	citation      model.Citation
	relevance     float64
	phraseMatches int
	contextValid  int
	totalMatches  int
}

// Rank implements spec §4.7.4: content-relevance scoring, rejection of
// irrelevant citations, then percentage assignment by rerank score (when
// enough citations carry one) or by the detected similarity-score regime.
// The input order is otherwise treated as already-deduplicated.
func Rank(citations []model.Citation, query string) []model.Citation {
	if len(citations) == 0 {
		return citations
	}

	keywords := textutil.ExtractQueryKeywords(query)
	scored := make([]scoredCitation, 0, len(citations))
	for _, c := range citations {
		relevance, phrase, ctxValid, total := contentRelevance(c.Snippet, keywords)
		if phrase == 0 && ctxValid == 0 && total < 2 {
			continue // rejected: spec §4.7.4 step 2
		}
		scored = append(scored, scoredCitation{citation: c, relevance: relevance, phraseMatches: phrase, contextValid: ctxValid, totalMatches: total})
	}
	if len(scored) == 0 {
		return nil
	}

	if rerankCoverage(scored) >= minRerankCoverage {
		rankByRerank(scored)
	} else {
		rankBySimilarityRegime(scored)
	}

	return applyGuardAndRenumber(scored)
}

// contentRelevance scores a snippet against query keywords: phrase keywords
// (multi-word) weight x3, single-word keywords corroborated by another
// keyword within relevanceContextWindow chars weight x1.5, otherwise x0.5.
// Normalized by the theoretical maximum (every keyword slot scoring as a
// phrase match).
func contentRelevance(snippet string, keywords []string) (relevance float64, phraseMatches, contextValid, total int) {
	if snippet == "" || len(keywords) == 0 {
		return 0, 0, 0, 0
	}
	lower := strings.ToLower(snippet)

	var phrases, singleWords []string
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			phrases = append(phrases, kw)
		} else {
			singleWords = append(singleWords, kw)
		}
	}

	var score float64
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			score += 3
			phraseMatches++
			total++
		}
	}
	for _, w := range singleWords {
		idx := strings.Index(lower, w)
		if idx < 0 {
			continue
		}
		total++
		if contextValidated(lower, w, idx, keywords) {
			score += 1.5
			contextValid++
		} else {
			score += 0.5
		}
	}

	maxScore := float64(len(keywords)) * 3.0
	if maxScore > 0 {
		relevance = score / maxScore
	}
	return relevance, phraseMatches, contextValid, total
}

// contextValidated reports whether some other query keyword or phrase word
// appears within relevanceContextWindow chars of word's occurrence at idx.
func contextValidated(lower, word string, idx int, keywords []string) bool {
	start := idx - relevanceContextWindow
	end := idx + len(word) + relevanceContextWindow
	if start < 0 {
		start = 0
	}
	if end > len(lower) {
		end = len(lower)
	}
	window := lower[start:end]
	for _, kw := range keywords {
		if kw == word {
			continue
		}
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

func rerankCoverage(scored []scoredCitation) float64 {
	n := 0
	for _, s := range scored {
		if s.citation.RerankScore != nil {
			n++
		}
	}
	return float64(n) / float64(len(scored))
}

// rankByRerank sorts by rerank_score descending (content relevance as
// tiebreaker, missing scores sorting last) and assigns percentages relative
// to the best rerank score, floored at rerankPercentFloor (spec §4.7.4 step 3).
func rankByRerank(scored []scoredCitation) {
	sort.SliceStable(scored, func(i, j int) bool {
		vi, iok := rerankOf(scored[i])
		vj, jok := rerankOf(scored[j])
		if iok != jok {
			return iok
		}
		if iok && vi != vj {
			return vi > vj
		}
		return scored[i].relevance > scored[j].relevance
	})

	var maxRerank float64
	for _, s := range scored {
		if v, ok := rerankOf(s); ok && v > maxRerank {
			maxRerank = v
		}
	}

	for i := range scored {
		v, ok := rerankOf(scored[i])
		if !ok || maxRerank <= 0 {
			scored[i].citation.SimilarityPercentage = rerankPercentFloor
			continue
		}
		pct := v / maxRerank * 100
		if pct < rerankPercentFloor {
			pct = rerankPercentFloor
		}
		scored[i].citation.SimilarityPercentage = pct
	}
}

func rerankOf(s scoredCitation) (float64, bool) {
	if s.citation.RerankScore != nil {
		return *s.citation.RerankScore, true
	}
	return 0, false
}

func simOf(s scoredCitation) float64 {
	if s.citation.SimilarityScore != nil {
		return *s.citation.SimilarityScore
	}
	return 0
}

// rankBySimilarityRegime detects which of the four similarity-score regimes
// (spec §4.7.4 step 4) the surviving citations fall into and ranks/scores
// accordingly.
func rankBySimilarityRegime(scored []scoredCitation) {
	var present []float64
	for _, s := range scored {
		if s.citation.SimilarityScore != nil {
			present = append(present, *s.citation.SimilarityScore)
		}
	}
	if len(present) == 0 {
		rankByRelevancePrimary(scored)
		return
	}

	max_, min_ := present[0], present[0]
	for _, v := range present[1:] {
		if v > max_ {
			max_ = v
		}
		if v < min_ {
			min_ = v
		}
	}
	spread := max_ - min_

	switch {
	case isRRFLike(max_, spread) || isMixedSystems(max_, min_):
		rankByRelevancePrimary(scored)
	case isCloselyPacked(max_, min_):
		rankCloselyPacked(scored)
	case isDistanceBased(max_, min_):
		rankDistanceBased(scored, max_, min_)
	default:
		rankSimilarityBased(scored, max_, min_)
	}
}

func isRRFLike(max_, spread float64) bool {
	return max_ < rrfMaxThreshold && spread < rrfSpreadThreshold
}

func isMixedSystems(max_, min_ float64) bool {
	if min_ > 0 && max_/min_ > mixedRatioThreshold {
		return true
	}
	return max_ > mixedHighThreshold && min_ < mixedLowThreshold
}

func isCloselyPacked(max_, min_ float64) bool {
	if max_ <= 0 {
		return false
	}
	return (max_-min_)/max_ < closelyPackedRelRange
}

func isDistanceBased(max_, min_ float64) bool {
	return max_ > distanceMaxThreshold && min_ > distanceMinThreshold
}

// rankByRelevancePrimary is used for the RRF-like and mixed-systems regimes:
// content relevance becomes the primary signal; the top citation gets
// exactly 100%, the rest scale between 50 and 95 (spec §4.7.4 step 4).
func rankByRelevancePrimary(scored []scoredCitation) {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].relevance > scored[j].relevance })
	maxRel := scored[0].relevance
	for i := range scored {
		if i == 0 {
			scored[i].citation.SimilarityPercentage = 100
			continue
		}
		if maxRel <= 0 {
			scored[i].citation.SimilarityPercentage = 50
			continue
		}
		scored[i].citation.SimilarityPercentage = 50 + scored[i].relevance/maxRel*45
	}
}

// rankCloselyPacked: first gets 100%, each subsequent one decrements by 5
// points down to a floor of 70% (spec §4.7.4 step 4).
func rankCloselyPacked(scored []scoredCitation) {
	sort.SliceStable(scored, func(i, j int) bool { return simOf(scored[i]) > simOf(scored[j]) })
	pct := 100.0
	for i := range scored {
		if i == 0 {
			scored[i].citation.SimilarityPercentage = 100
			continue
		}
		pct -= closelyPackedDecrement
		if pct < closelyPackedFloor {
			pct = closelyPackedFloor
		}
		scored[i].citation.SimilarityPercentage = pct
	}
}

// rankDistanceBased sorts ascending (lower distance is more relevant);
// percentage = (worst - score) / range * 100 (spec §4.7.4 step 4).
func rankDistanceBased(scored []scoredCitation, worst, best float64) {
	sort.SliceStable(scored, func(i, j int) bool { return simOf(scored[i]) < simOf(scored[j]) })
	rng := worst - best
	for i := range scored {
		if rng <= 0 {
			scored[i].citation.SimilarityPercentage = 100
			continue
		}
		scored[i].citation.SimilarityPercentage = (worst - simOf(scored[i])) / rng * 100
	}
}

// rankSimilarityBased sorts descending; percentage = (score - worst) /
// range * 100 (spec §4.7.4 step 4).
func rankSimilarityBased(scored []scoredCitation, best, worst float64) {
	sort.SliceStable(scored, func(i, j int) bool { return simOf(scored[i]) > simOf(scored[j]) })
	rng := best - worst
	for i := range scored {
		if rng <= 0 {
			scored[i].citation.SimilarityPercentage = 100
			continue
		}
		scored[i].citation.SimilarityPercentage = (simOf(scored[i]) - worst) / rng * 100
	}
}

// applyGuardAndRenumber implements the step-5 known-bug defense (a non-null
// top score that computed to a literal 0% is forced to 100%) and the
// final step-6 ID renumbering.
func applyGuardAndRenumber(scored []scoredCitation) []model.Citation {
	out := make([]model.Citation, len(scored))
	for i, s := range scored {
		out[i] = s.citation
	}

	if len(out) > 0 && out[0].SimilarityPercentage == 0 && (out[0].SimilarityScore != nil || out[0].RerankScore != nil) {
		slog.Error("answer.Rank: top citation computed 0% with a non-null score, forcing to 100%",
			"source", out[0].Source, "page", out[0].Page)
		out[0].SimilarityPercentage = 100
	}

	for i := range out {
		out[i].ID = i + 1
	}
	return out
}
