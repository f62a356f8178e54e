package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Generator is the subset of provider.GenAIProvider the assembler needs.
type Generator interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxOutputTokens int, stopSequences []string) (string, error)
}

// GenerateParams configures one answer-generation call (spec §4.7.2). All
// fields are caller-configurable per request.
type GenerateParams struct {
	Question      string
	Context       string
	Temperature   float64
	MaxTokens     int
	ResponseLang  string // language of the question; "" means detect/match automatically
}

var closingPhrases = []string{
	"best regards",
	"thank you",
	"please let me know",
	"if you have any other questions",
	"if you have any further questions",
	"kind regards",
	"sincerely",
}

const systemPromptTemplate = `You answer questions using only the provided context.

Rules:
- Cite sources using the exact format [Source N]. Never include inline page numbers or filenames.
- Do not open with a greeting or close with a signature, thanks, or an offer for further help.
- Prefer the IMAGE CONTENT section for questions about drawings, tools, parts, or part numbers.
- Synthesize an answer across the provided chunks rather than refusing when a direct answer isn't in a single chunk.
- Answer in the language of the question. If the context is in a different language, translate the relevant parts.
- The question may be a transliteration (Roman-script rendering) of a non-Latin-script language; interpret it accordingly.

Context:
%s`

// Generate invokes the LLM with the system prompt described in spec §4.7.2
// and post-processes the response. Returns an error when the provider
// returns no content, per spec §7 "On empty choices or null content: raise".
func Generate(ctx context.Context, gen Generator, p GenerateParams) (string, error) {
	systemPrompt := fmt.Sprintf(systemPromptTemplate, p.Context)

	raw, err := gen.GenerateContent(ctx, systemPrompt, p.Question, p.Temperature, p.MaxTokens, closingPhrases)
	if err != nil {
		return "", fmt.Errorf("answer.Generate: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("answer.Generate: empty response from model")
	}

	return postProcess(raw), nil
}

var repeatedSignaturePattern = regexp.MustCompile(`(?i)(best regards,?\s*\[your name\]\s*){2,}`)

// postProcess strips any content after the first matching closing phrase and
// collapses repeated signature boilerplate (spec §4.7.2).
func postProcess(text string) string {
	text = repeatedSignaturePattern.ReplaceAllString(text, "Best regards, [Your Name]")

	lower := strings.ToLower(text)
	cut := len(text)
	for _, phrase := range closingPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimSpace(text[:cut])
}
