package model

import "time"

// DocumentStatus mirrors the ingestion pipeline's lifecycle for a document.
// The retrieval core only ever reads this; ingestion owns the writes.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentIndexed    DocumentStatus = "indexed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is the read-only registry record the core consults to resolve a
// document name to its id and to validate candidate page numbers against a
// known page count (spec §4.5.2, §6).
type Document struct {
	ID           string
	DocumentName string // display name; source basename derives from this
	Status       DocumentStatus
	FileHash     string
	ParserUsed   string
	Pages        int
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IndexEntry is one row of the DocumentIndexMap (spec §3, §4.1): the mapping
// from a document's display name to its physical index name, separately for
// text and image-OCR content.
type IndexEntry struct {
	DocumentName string
	IndexName    string
	ImageIndex   string // empty if the document has no OCR index
}
