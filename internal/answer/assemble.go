package answer

import (
	"context"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Assembler is the Answer Assembler (C7). It owns no other component's
// state; it is handed an already-selected Generator per request (model
// selection between deep/simple is the engine's job, spec §4.7.2).
type Assembler struct {
	contextTokenBudget int
	reservedTokens     int
}

// NewAssembler builds an Assembler with the context-packing budget from
// spec §4.7.1 (total ≤128k, ~28k reserved).
func NewAssembler(contextTokenBudget, reservedTokens int) *Assembler {
	if contextTokenBudget <= 0 {
		contextTokenBudget = 128_000
	}
	if reservedTokens <= 0 {
		reservedTokens = 28_000
	}
	return &Assembler{contextTokenBudget: contextTokenBudget, reservedTokens: reservedTokens}
}

// AssembleParams bundles the per-request inputs to Assemble. Citations is
// the already score-ranked (C4/C3) candidate list before C7's own
// deduplication and content-relevance ranking.
type AssembleParams struct {
	Question    string
	Citations   []model.Citation
	Temperature float64
	MaxTokens   int
	SubQueries  []string
}

// failedQueryMessage is the short, non-leaky message surfaced to callers on
// an LLM failure (spec §7 "User-visible failure").
const failedQueryMessage = "Something went wrong while answering your question. Please try again."

// Assemble packs context, invokes gen, then deduplicates and ranks the
// citations for the final response (spec §4.7, steps in source order: pack,
// generate, dedup, rank). On generation failure it returns the user-visible
// failure shape from spec §7 alongside a non-nil error for the caller to log.
func (a *Assembler) Assemble(ctx context.Context, gen Generator, p AssembleParams) (model.Response, error) {
	usableBudget := a.contextTokenBudget - a.reservedTokens
	packed := PackContext(p.Citations, usableBudget)

	answerText, err := Generate(ctx, gen, GenerateParams{
		Question:    p.Question,
		Context:     packed.Text,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return model.Response{
			Answer:    failedQueryMessage,
			Sources:   []string{},
			Citations: []model.Citation{},
		}, err
	}

	deduped := Dedup(p.Citations)
	ranked := Rank(deduped, p.Question)

	responseTokens := estimateTokens(answerText)
	return model.Response{
		Answer:         answerText,
		Sources:        sourcesOf(ranked),
		Citations:      ranked,
		NumChunksUsed:  len(ranked),
		ContextTokens:  packed.Tokens,
		ResponseTokens: responseTokens,
		TotalTokens:    packed.Tokens + responseTokens,
		SubQueries:     p.SubQueries,
		Truncated:      packed.Truncated,
	}, nil
}

// sourcesOf returns the distinct sources that produced surviving citations,
// in citation order (spec §8 "response.sources ⊆ {c.source for c in citations}").
func sourcesOf(citations []model.Citation) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, c.Source)
	}
	return out
}
