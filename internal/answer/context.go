// Package answer is the Answer Assembler (C7): packs context, invokes the
// LLM, cleans its output, and deduplicates/ranks citations into the final
// response (spec §4.7).
package answer

import (
	"fmt"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

const imageSectionHeader = "IMAGE CONTENT (OCR TEXT EXTRACTED FROM IMAGES)\n\n"

// approxTokensPerChar mirrors the source's rough token estimator: no
// tokenizer dependency, just a stable ratio used consistently for both
// budgeting and reporting (spec §4.7.1 leaves the estimator unspecified).
const approxTokensPerChar = 0.25

func estimateTokens(s string) int {
	return int(float64(len(s)) * approxTokensPerChar)
}

// PackedContext is the result of context packing: the prompt text plus the
// token accounting the caller reports back to the user (spec §4.7.1).
type PackedContext struct {
	Text      string
	Tokens    int
	Truncated bool
}

// PackContext concatenates ranked citations into `[Source i: filename (Page
// p)]` blocks, separates an image-OCR section when present, and truncates
// from the tail of the main-text section when the budget is exceeded (spec
// §4.7.1). tokenBudget is the usable context size, already net of the
// caller's reserved tokens.
func PackContext(citations []model.Citation, tokenBudget int) PackedContext {
	var imageBlocks, textBlocks []string
	for i, c := range citations {
		block := formatBlock(i+1, c)
		if c.ContentType == "image" {
			imageBlocks = append(imageBlocks, block)
		} else {
			textBlocks = append(textBlocks, block)
		}
	}

	var imageSection string
	if len(imageBlocks) > 0 {
		imageSection = imageSectionHeader + strings.Join(imageBlocks, "")
	}
	mainSection := strings.Join(textBlocks, "")

	full := imageSection + mainSection
	tokens := estimateTokens(full)
	if tokens <= tokenBudget {
		return PackedContext{Text: full, Tokens: tokens, Truncated: false}
	}

	imageTokens := estimateTokens(imageSection)
	if imageTokens >= tokenBudget {
		// The image section alone exceeds budget: truncate the whole
		// context uniformly (spec §4.7.1 step 3).
		truncated := truncateToBudget(full, tokenBudget)
		return PackedContext{Text: truncated, Tokens: estimateTokens(truncated), Truncated: true}
	}

	remaining := tokenBudget - imageTokens
	truncatedMain := truncateToBudget(mainSection, remaining)
	out := imageSection + truncatedMain
	return PackedContext{Text: out, Tokens: estimateTokens(out), Truncated: true}
}

func formatBlock(index int, c model.Citation) string {
	return fmt.Sprintf("[Source %d: %s (Page %d)]\n%s\n\n---\n\n", index, c.Source, c.Page, c.FullText)
}

// boundaryMarkers are tried in order of preference when truncation must
// land on a clean break (spec §4.7.1 step 4).
var boundaryMarkers = []string{"\n\n---\n\n", "\n\n", ". ", "\n"}

// truncateToBudget trims text to approximately tokenBudget tokens, then
// backs up to the nearest preferred boundary within the last 20% of the
// resulting window so the cut doesn't land mid-sentence.
func truncateToBudget(text string, tokenBudget int) string {
	if tokenBudget <= 0 {
		return ""
	}
	charBudget := int(float64(tokenBudget) / approxTokensPerChar)
	if charBudget >= len(text) {
		return text
	}

	cut := charBudget
	searchFloor := int(float64(charBudget) * 0.8)

	for _, marker := range boundaryMarkers {
		if idx := strings.LastIndex(text[:cut], marker); idx >= searchFloor {
			return text[:idx+len(marker)]
		}
	}
	return text[:cut]
}
