package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/rerr"
)

// VectorStore is the k-NN half of the Search Executor's backing store
// (spec §4.2, §6). One physical index per document name, modeled here as a
// partition key on document_chunks.
type VectorStore struct {
	pool *pgxpool.Pool
}

// NewVectorStore creates a VectorStore.
func NewVectorStore(pool *pgxpool.Pool) *VectorStore {
	return &VectorStore{pool: pool}
}

// VectorHit is one k-NN candidate, carrying the cosine similarity alongside
// the chunk so callers can compute RRF ranks without a second round trip.
type VectorHit struct {
	Chunk      model.Chunk
	Similarity float64
}

// CheckDimension verifies that queryDim matches the index's stored vector
// dimension, probing a single row rather than a schema catalog query (the
// column is declared vector(N) but pgx does not expose N directly).
// Returns rerr.DimensionMismatch on mismatch. An index with no rows yet
// cannot be validated and is treated as compatible.
func (s *VectorStore) CheckDimension(ctx context.Context, indexID string, queryDim int) error {
	var storedDim int
	err := s.pool.QueryRow(ctx, `
		SELECT vector_dims(embedding)
		FROM document_chunks
		WHERE index_id = $1
		LIMIT 1`, indexID,
	).Scan(&storedDim)
	if err != nil {
		// No rows (pgx.ErrNoRows) means nothing to validate against yet.
		return nil
	}
	if storedDim != queryDim {
		return rerr.NewDimensionMismatch(indexID, storedDim, queryDim)
	}
	return nil
}

// SimilaritySearch returns the top fetchK chunks in indexID ranked by cosine
// similarity to queryVec, applying an optional minScore floor. efSearch
// tunes the HNSW search breadth (spec §4.2).
func (s *VectorStore) SimilaritySearch(ctx context.Context, indexID string, queryVec []float32, fetchK, efSearch int, minScore float64) ([]VectorHit, error) {
	embedding := pgvector.NewVector(queryVec)

	// SET LOCAL only affects the transaction it runs in, so the ef_search
	// tweak and the SELECT must share one connection; pgx's extended
	// protocol cannot batch a SET and a parameterized SELECT into a single
	// Query call, so this takes an explicit transaction instead.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.SimilaritySearch: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)); err != nil {
		return nil, fmt.Errorf("store.SimilaritySearch: set ef_search: %w", err)
	}

	query := `
		SELECT
			dc.id, dc.document_id, dc.chunk_index, dc.content, dc.page,
			dc.start_char, dc.end_char, dc.language, dc.content_type, dc.metadata,
			1 - (dc.embedding <=> $1::vector) AS similarity
		FROM document_chunks dc
		WHERE dc.index_id = $2
			AND (1 - (dc.embedding <=> $1::vector)) >= $3
		ORDER BY dc.embedding <=> $1::vector
		LIMIT $4`

	slog.Debug("[STORE] vector search",
		"index_id", indexID, "fetch_k", fetchK, "ef_search", efSearch, "min_score", minScore)

	rows, err := tx.Query(ctx, query, embedding, indexID, minScore, fetchK)
	if err != nil {
		return nil, fmt.Errorf("store.SimilaritySearch: %w", err)
	}

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		var metaJSON []byte
		if err := rows.Scan(
			&h.Chunk.ID, &h.Chunk.DocumentID, &h.Chunk.ChunkIndex, &h.Chunk.Text,
			&h.Chunk.Page, &h.Chunk.StartChar, &h.Chunk.EndChar, &h.Chunk.Language,
			&h.Chunk.ContentType, &metaJSON, &h.Similarity,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store.SimilaritySearch: scan: %w", err)
		}
		if err := unmarshalChunkMetadata(metaJSON, &h.Chunk); err != nil {
			slog.Warn("[STORE] malformed chunk metadata", "chunk_id", h.Chunk.ID, "error", err)
		}
		hits = append(hits, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.SimilaritySearch: %w", err)
	}

	slog.Debug("[STORE] vector search complete", "index_id", indexID, "hits", len(hits))
	return hits, nil
}

// AllChunks returns every chunk in an index, ordered by chunk_index. Used by
// the occurrence-search path (spec §4.6), which must scan full document text
// rather than a similarity-bounded candidate set.
func (s *VectorStore) AllChunks(ctx context.Context, indexID string) ([]model.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT dc.id, dc.document_id, d.document_name, dc.chunk_index, dc.content,
			dc.page, dc.start_char, dc.end_char, dc.language, dc.content_type, dc.metadata
		FROM document_chunks dc
		JOIN documents d ON d.id = dc.document_id
		WHERE dc.index_id = $1
		ORDER BY dc.chunk_index`, indexID)
	if err != nil {
		return nil, fmt.Errorf("store.AllChunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var metaJSON []byte
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.Source, &c.ChunkIndex, &c.Text, &c.Page,
			&c.StartChar, &c.EndChar, &c.Language, &c.ContentType, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("store.AllChunks: scan: %w", err)
		}
		if err := unmarshalChunkMetadata(metaJSON, &c); err != nil {
			slog.Warn("[STORE] malformed chunk metadata", "chunk_id", c.ID, "error", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Count returns the number of chunks in an index, optionally constrained by
// a raw SQL filter fragment, which is appended unvalidated.
func (s *VectorStore) Count(ctx context.Context, indexID, filterSQL string, filterArgs []any) (int, error) {
	query := `SELECT count(*) FROM document_chunks WHERE index_id = $1`
	args := []any{indexID}
	if filterSQL != "" {
		query += " AND " + filterSQL
		args = append(args, filterArgs...)
	}

	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("store.Count: %w", err)
	}
	return count, nil
}

// DeleteIndex removes every chunk belonging to an index, the store side of
// C1's auto-recreate-on-mismatch path.
func (s *VectorStore) DeleteIndex(ctx context.Context, indexID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE index_id = $1`, indexID)
	if err != nil {
		return fmt.Errorf("store.DeleteIndex: %w", err)
	}
	return nil
}
