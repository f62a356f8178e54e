package engine

import (
	"context"

	"github.com/connexus-ai/ragbox-backend/internal/provider"
	"github.com/connexus-ai/ragbox-backend/internal/rerank"
)

// answerGenAI adapts provider.GenAIProvider to answer.Generator's
// six-argument signature (it threads stop sequences; planner.Generator
// does not).
type answerGenAI struct {
	p *provider.GenAIProvider
}

func (a answerGenAI) GenerateContent(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxOutputTokens int, stopSequences []string) (string, error) {
	return a.p.GenerateContent(ctx, systemPrompt, userPrompt, provider.GenOpts{
		Temperature:     temperature,
		MaxOutputTokens: maxOutputTokens,
		StopSequences:   stopSequences,
	})
}

// plannerGenAI adapts provider.GenAIProvider to planner.Generator's
// five-argument signature, used for sub-query decomposition.
type plannerGenAI struct {
	p *provider.GenAIProvider
}

func (a plannerGenAI) GenerateContent(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	return a.p.GenerateContent(ctx, systemPrompt, userPrompt, provider.GenOpts{
		Temperature:     temperature,
		MaxOutputTokens: maxTokens,
	})
}

// rerankAdapter adapts provider.RerankProvider's wire types to rerank's
// package-local Passage/Result types, keeping the policy layer free of a
// direct REST-client import.
type rerankAdapter struct {
	p *provider.RerankProvider
}

func (a rerankAdapter) Rerank(ctx context.Context, query string, passages []rerank.Passage) ([]rerank.Result, error) {
	in := make([]provider.RerankPassage, len(passages))
	for i, p := range passages {
		in[i] = provider.RerankPassage{ID: p.ID, Text: p.Text}
	}
	out, err := a.p.Rerank(ctx, query, in)
	if err != nil {
		return nil, err
	}
	results := make([]rerank.Result, len(out))
	for i, r := range out {
		results[i] = rerank.Result{ID: r.ID, Score: r.Score}
	}
	return results, nil
}
