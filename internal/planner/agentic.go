package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Generator is the subset of provider.GenAIProvider the planner needs to
// decompose a complex query into sub-queries.
type Generator interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

const decomposeSystemPrompt = `You split a complex question into independent, literal sub-questions that together cover everything the original asks for. Respond with a JSON array of strings only, no other text. Produce at most %d sub-questions; if the question is already simple, return an array with just the original question.`

// Decompose asks a lightweight model to split query into at most
// maxSubQueries independent sub-queries (spec §4.6 "Agentic query"). On any
// generator failure, or if parsing yields nothing usable, it degrades to
// returning the original query unsplit rather than failing the request.
func Decompose(ctx context.Context, gen Generator, query string, maxSubQueries int) []string {
	if maxSubQueries <= 0 {
		maxSubQueries = 3
	}
	if gen == nil {
		return []string{query}
	}

	systemPrompt := fmt.Sprintf(decomposeSystemPrompt, maxSubQueries)
	raw, err := gen.GenerateContent(ctx, systemPrompt, query, 0.0, 500)
	if err != nil {
		slog.Warn("planner.Decompose: generator unavailable, using original query", "error", err)
		return []string{query}
	}

	subQueries := parseSubQueries(raw)
	if len(subQueries) == 0 {
		return []string{query}
	}
	if len(subQueries) > maxSubQueries {
		subQueries = subQueries[:maxSubQueries]
	}
	return subQueries
}

func parseSubQueries(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return nonEmpty(list)
	}

	// Fallback: a numbered or bulleted plain-text list, one item per line.
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return nonEmpty(lines)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MergeSubQueryResults deduplicates chunks returned across sub-queries by
// content hash, boosting the similarity score of any chunk that appeared for
// more than one sub-query, and caps the union at maxTotalChunks (spec §4.6).
func MergeSubQueryResults(perSubquery [][]model.ScoredChunk, maxTotalChunks int) []model.ScoredChunk {
	byHash := make(map[string]*model.ScoredChunk)
	order := make([]string, 0)

	for _, chunks := range perSubquery {
		for _, c := range chunks {
			h := contentHash(c.Chunk.Text)
			if existing, ok := byHash[h]; ok {
				boostScore(existing)
				continue
			}
			cc := c
			byHash[h] = &cc
			order = append(order, h)
		}
	}

	out := make([]model.ScoredChunk, 0, len(order))
	for _, h := range order {
		out = append(out, *byHash[h])
	}

	sort.SliceStable(out, func(i, j int) bool {
		return scoreOf(out[i]) > scoreOf(out[j])
	})

	if maxTotalChunks > 0 && len(out) > maxTotalChunks {
		out = out[:maxTotalChunks]
	}
	return out
}

// boostScore rewards a chunk retrieved by more than one sub-query by
// increasing its similarity score 15%.
func boostScore(c *model.ScoredChunk) {
	if c.SimilarityScore != nil {
		boosted := *c.SimilarityScore * 1.15
		c.SimilarityScore = &boosted
	}
}

func scoreOf(c model.ScoredChunk) float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	if c.SimilarityScore != nil {
		return *c.SimilarityScore
	}
	return 0
}

func contentHash(text string) string {
	prefix := text
	if len(prefix) > 200 {
		prefix = prefix[:200]
	}
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])
}
