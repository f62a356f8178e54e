// Package citation is the Citation Builder (C5): turns a ranked chunk into a
// Citation with a validated page, a context-relevant snippet, and calibrated
// source/page confidence (spec §4.5).
package citation

import (
	"context"
	"regexp"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// DocumentIndex validates a candidate source name against the
// DocumentIndexMap (spec §4.5.1 tiers 1-2).
type DocumentIndex interface {
	Resolve(documentName string) (indexName string, ok bool)
}

// PageCounts reports a document's known page count, used to bound candidate
// page numbers (spec §4.5.2: "validated against the document's known page
// count ... and a hard range of 1-10000").
type PageCounts interface {
	PageCount(documentID string) (int, bool)
}

// Embedder computes embeddings for the semantic snippet path (spec §4.5.3
// step 3). A Builder with a nil Embedder always uses the keyword-centered
// fallback.
type Embedder interface {
	EmbedQuery(ctx context.Context, texts []string) ([][]float32, error)
}

// Builder is the Citation Builder (C5).
type Builder struct {
	docIndex   DocumentIndex
	pageCounts PageCounts
	embedder   Embedder
}

// NewBuilder constructs a Builder. pageCounts and embedder may be nil: page
// validation and the semantic snippet path then degrade to their documented
// fallbacks rather than failing.
func NewBuilder(docIndex DocumentIndex, pageCounts PageCounts, embedder Embedder) *Builder {
	return &Builder{docIndex: docIndex, pageCounts: pageCounts, embedder: embedder}
}

// BuildParams bundles the per-request inputs to Build.
type BuildParams struct {
	Query           string
	QueryEmbedding  []float32
	QueryLanguage   string   // e.g. "eng"; used to decide text_english substitution
	FallbackSources []string // caller-supplied fallback list (spec §4.5.1 tier 5)
}

// Build converts ranked chunks into Citations, one per chunk, in the same
// order as the input (ranking and deduplication are C7's job). IDs are left
// at 0; the Answer Assembler assigns them after final ranking (spec §5
// "Citation IDs are assigned after final ranking").
func (b *Builder) Build(ctx context.Context, chunks []model.ScoredChunk, p BuildParams) []model.Citation {
	out := make([]model.Citation, len(chunks))

	// Tier 4 source resolution reuses a higher-tier match already found for
	// the same document within this request (spec §4.5.1 tier 4's "reverse
	// index {document_id -> [chunk_index]}").
	knownByDocID := make(map[string]string)

	for i, c := range chunks {
		out[i] = b.buildOne(ctx, c, p, knownByDocID)
	}
	return out
}

func (b *Builder) buildOne(ctx context.Context, sc model.ScoredChunk, p BuildParams, knownByDocID map[string]string) model.Citation {
	chunk := sc.Chunk

	source, sourceConfidence := b.resolveSource(chunk, p.FallbackSources, knownByDocID)
	if sourceConfidence >= 0.7 {
		knownByDocID[chunk.DocumentID] = source
	}

	page, pageConfidence, method := b.resolvePage(chunk)

	snippet := b.buildSnippet(ctx, chunk, p)

	cit := model.Citation{
		Source:               source,
		DocumentID:           chunk.DocumentID,
		Page:                 page,
		Snippet:              snippet,
		FullText:             chunk.Text,
		SimilarityScore:      sc.SimilarityScore,
		RerankScore:          sc.RerankScore,
		SourceConfidence:     sourceConfidence,
		PageConfidence:       pageConfidence,
		PageExtractionMethod: method,
		ContentType:          contentType(chunk),
	}
	if cit.ContentType == "image" {
		cit.ImageRef = chunk.ImageRef
	} else {
		idx := chunk.ChunkIndex
		cit.ChunkIndex = &idx
	}
	return cit
}

// imageMarker is the literal marker ingestion embeds in OCR'd chunk text
// (spec §4.5.4).
const imageMarker = "<!-- image -->"

// contentType tags a chunk "image" when it is OCR content by any of the
// three signals the spec lists: content_type, the literal HTML-comment
// marker, or the presence of image reference fields. Location is always
// shown as "Page N" only — never a specific image number — because
// ingestion's image numbering is document-wide (spec §4.5.4).
func contentType(c model.Chunk) string {
	if c.ContentType == "image_ocr" {
		return "image"
	}
	if strings.Contains(c.Text, imageMarker) {
		return "image"
	}
	if c.ImageRef != nil || c.Metadata.ImageIndex != nil {
		return "image"
	}
	return "text"
}

var sourceMarkerPattern = regexp.MustCompile(`\[Source \d+:\s*([^\]]+?)(\s*\(Page\s+\d+\))?\]`)
