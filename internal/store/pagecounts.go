package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PageCountIndex is an in-memory, read-mostly snapshot of each document's
// known page count, keyed by document_id. The citation builder consults it
// to bound candidate page numbers (spec §4.5.2). Refreshed wholesale on
// ingestion events, mirroring the Index Router's load-and-replace pattern.
type PageCountIndex struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewPageCountIndex creates an empty PageCountIndex.
func NewPageCountIndex() *PageCountIndex {
	return &PageCountIndex{counts: make(map[string]int)}
}

// Load replaces the index's contents from the document registry.
func (idx *PageCountIndex) Load(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `SELECT id, pages FROM documents WHERE pages > 0`)
	if err != nil {
		return fmt.Errorf("store.PageCountIndex.Load: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var pages int
		if err := rows.Scan(&id, &pages); err != nil {
			return fmt.Errorf("store.PageCountIndex.Load: scan: %w", err)
		}
		counts[id] = pages
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store.PageCountIndex.Load: %w", err)
	}

	idx.mu.Lock()
	idx.counts = counts
	idx.mu.Unlock()
	return nil
}

// Set records (or updates) a single document's page count, used when a
// document finishes indexing without requiring a full reload.
func (idx *PageCountIndex) Set(documentID string, pages int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.counts[documentID] = pages
}

// PageCount implements citation.PageCounts.
func (idx *PageCountIndex) PageCount(documentID string) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.counts[documentID]
	return p, ok
}
