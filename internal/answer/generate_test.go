package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) GenerateContent(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxOutputTokens int, stopSequences []string) (string, error) {
	return s.response, s.err
}

func TestGenerate_StripsClosingPhrase(t *testing.T) {
	gen := &stubGenerator{response: "The warranty lasts 12 months. Best regards, [Your Name]"}
	out, err := Generate(context.Background(), gen, GenerateParams{Question: "warranty?", Context: "ctx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "Best regards") {
		t.Fatalf("expected closing phrase stripped, got %q", out)
	}
}

func TestGenerate_EmptyResponseErrors(t *testing.T) {
	gen := &stubGenerator{response: "   "}
	_, err := Generate(context.Background(), gen, GenerateParams{Question: "q", Context: "ctx"})
	if err == nil {
		t.Fatalf("expected error on empty response")
	}
}

func TestGenerate_ProviderErrorPropagates(t *testing.T) {
	gen := &stubGenerator{err: errors.New("unavailable")}
	_, err := Generate(context.Background(), gen, GenerateParams{Question: "q", Context: "ctx"})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestPostProcess_CollapsesRepeatedSignature(t *testing.T) {
	text := "Answer text. Best regards, [Your Name] Best regards, [Your Name] Best regards, [Your Name]"
	out := postProcess(text)
	if strings.Count(out, "Best regards") > 1 {
		t.Fatalf("expected repeated signature collapsed, got %q", out)
	}
}
