// Package model holds the data types shared across the retrieval core:
// chunks, citations, and the document-index mapping.
package model

// PageBlock is an ordered per-page character range within a document's
// linearized text, used by character-position page resolution.
type PageBlock struct {
	Page      int    `json:"page"`
	StartChar int    `json:"startChar"`
	EndChar   int    `json:"endChar"`
	Type      string `json:"type"` // "text" | "image_ocr"
}

// ImageRef locates the source image an OCR chunk was extracted from.
type ImageRef struct {
	Page       int       `json:"page"`
	ImageIndex int       `json:"imageIndex"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// ChunkMetadata holds the fields the source document pipeline may attach to a
// chunk under either top-level keys or a nested "metadata" object. Readers
// must probe both shapes (see store.unmarshalChunkMetadata); writers canonicalize
// to this single struct.
type ChunkMetadata struct {
	Source          string      `json:"source,omitempty"`
	DocumentName    string      `json:"documentName,omitempty"`
	FileName        string      `json:"fileName,omitempty"`
	Filename        string      `json:"filename,omitempty"`
	DocName         string      `json:"docName,omitempty"`
	SourcePage      *int        `json:"sourcePage,omitempty"`
	Page            *int        `json:"page,omitempty"`
	PageConfidence  *float64    `json:"pageConfidence,omitempty"`
	ImagePage       *int        `json:"imagePage,omitempty"`
	ImageIndex      *int        `json:"imageIndex,omitempty"`
	ImageRef        *ImageRef   `json:"imageRef,omitempty"`
	PageBlocks      []PageBlock `json:"pageBlocks,omitempty"`
}

// Chunk is a retrievable unit of text: a contiguous passage with its
// embedding and offset metadata. See spec §3.
type Chunk struct {
	ID          string
	Text        string
	Vector      []float32
	Source      string // normalized basename, no path separators
	DocumentID  string
	Page        int // 1-based; unknown -> 1 with PageConfidence 0.1
	StartChar   int
	EndChar     int
	ChunkIndex  int
	Language    string // 3-letter code, e.g. "eng"
	ContentType string // "text" | "image_ocr"
	PageBlocks  []PageBlock
	ImageRef    *ImageRef
	TextEnglish string // translation, optional

	Metadata ChunkMetadata
}

// ScoredChunk pairs a Chunk with the scores accumulated while ranking it.
type ScoredChunk struct {
	Chunk Chunk

	// SimilarityScore is the fused (RRF or vector-only) relevance score.
	SimilarityScore *float64
	// RerankScore, when set by C4, is preferred over SimilarityScore for
	// both ordering and percentage display.
	RerankScore *float64

	// VectorRank/KeywordRank are the 0-based ranks this chunk held in each
	// sub-search before fusion; -1 when the chunk did not appear in that list.
	VectorRank  int
	KeywordRank int

	// PhraseMatchScore is C3's heuristic, the primary sort key across
	// shards; the fused score breaks ties.
	PhraseMatchScore float64

	// ArrivalOrder is the index at which this chunk was first produced,
	// used as the final, deterministic tiebreaker.
	ArrivalOrder int
}
