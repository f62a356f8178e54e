package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// DocumentStore is a read-only view of the document registry the ingestion
// pipeline owns. The retrieval core consults it to resolve a document name
// to an id and to validate candidate page numbers against a known page
// count (spec §4.5.2, §6); it never writes here.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// GetByName looks up a document by its display name. Returns
// (nil, pgx.ErrNoRows) if no such document is registered.
func (s *DocumentStore) GetByName(ctx context.Context, documentName string) (*model.Document, error) {
	doc := &model.Document{}
	var status string

	err := s.pool.QueryRow(ctx, `
		SELECT id, document_name, status, file_hash, parser_used, pages, chunk_count, created_at, updated_at
		FROM documents WHERE document_name = $1`, documentName,
	).Scan(
		&doc.ID, &doc.DocumentName, &status, &doc.FileHash, &doc.ParserUsed,
		&doc.Pages, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store.GetByName: %w", err)
	}
	doc.Status = model.DocumentStatus(status)
	return doc, nil
}

// ListIndexed returns the registry entries for all documents whose indexing
// has completed, used to seed the Index Router at startup.
func (s *DocumentStore) ListIndexed(ctx context.Context) ([]model.IndexEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_name, index_name, coalesce(image_index_name, '')
		FROM document_index_map`)
	if err != nil {
		return nil, fmt.Errorf("store.ListIndexed: %w", err)
	}
	defer rows.Close()

	var entries []model.IndexEntry
	for rows.Next() {
		var e model.IndexEntry
		if err := rows.Scan(&e.DocumentName, &e.IndexName, &e.ImageIndex); err != nil {
			return nil, fmt.Errorf("store.ListIndexed: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
