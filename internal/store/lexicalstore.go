package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/textutil"
)

// LexicalStore is the keyword half of the Search Executor's backing store.
// It approximates the boost schedule from spec §4.2 — exact-phrase slop 1
// (×10), phrase slop 3 (×5), fuzzy multi-field (×1.5), and the alternate-
// language clauses (×4, ×2) — using Postgres tsquery proximity operators
// (<->/<N>) rather than an OpenSearch-style multi_match/match_phrase batch,
// since this store has no such backend.
type LexicalStore struct {
	pool *pgxpool.Pool
}

// NewLexicalStore creates a LexicalStore.
func NewLexicalStore(pool *pgxpool.Pool) *LexicalStore {
	return &LexicalStore{pool: pool}
}

// LexicalHit is one keyword-search candidate.
type LexicalHit struct {
	Chunk model.Chunk
	Score float64
}

const (
	boostExactPhrase     = 10.0
	boostLoosePhrase     = 5.0
	boostFuzzy           = 1.5
	boostAlternatePhrase = 4.0
	boostAlternateFuzzy  = 2.0
)

// Search runs the boosted phrase/fuzzy query against one index and returns
// up to fetchK hits ordered by combined score. alternateQuery is the
// cross-language translation of queryText, searched against the same
// (original-language) content column; pass "" to omit it.
func (s *LexicalStore) Search(ctx context.Context, indexID, queryText, alternateQuery string, fetchK int) ([]LexicalHit, error) {
	exactPhrase := proximityTsQuery(queryText, 1)
	loosePhrase := proximityTsQuery(queryText, 3)
	fuzzy := orTsQuery(queryText)

	var altPhrase, altFuzzy string
	if strings.TrimSpace(alternateQuery) != "" {
		altPhrase = proximityTsQuery(alternateQuery, 2)
		altFuzzy = orTsQuery(alternateQuery)
	}

	if exactPhrase == "" && fuzzy == "" {
		return nil, nil
	}

	const query = `
		WITH q AS (
			SELECT
				CASE WHEN $2 <> '' THEN to_tsquery('english', $2) END AS q_exact,
				CASE WHEN $3 <> '' THEN to_tsquery('english', $3) END AS q_loose,
				CASE WHEN $4 <> '' THEN to_tsquery('english', $4) END AS q_fuzzy,
				CASE WHEN $5 <> '' THEN to_tsquery('english', $5) END AS q_alt_phrase,
				CASE WHEN $6 <> '' THEN to_tsquery('english', $6) END AS q_alt_fuzzy
		)
		SELECT
			dc.id, dc.document_id, dc.chunk_index, dc.content, dc.page,
			dc.start_char, dc.end_char, dc.language, dc.content_type, dc.metadata,
			  coalesce(ts_rank_cd(dc.content_tsv, q.q_exact), 0) * 10.0
			+ coalesce(ts_rank_cd(dc.content_tsv, q.q_loose), 0) * 5.0
			+ coalesce(ts_rank_cd(dc.content_tsv, q.q_fuzzy), 0) * 1.5
			+ coalesce(ts_rank_cd(dc.content_tsv, q.q_alt_phrase), 0) * 4.0
			+ coalesce(ts_rank_cd(dc.content_tsv, q.q_alt_fuzzy), 0) * 2.0
			AS score
		FROM document_chunks dc, q
		WHERE dc.index_id = $1
			AND (
				(q.q_exact IS NOT NULL AND dc.content_tsv @@ q.q_exact)
				OR (q.q_loose IS NOT NULL AND dc.content_tsv @@ q.q_loose)
				OR (q.q_fuzzy IS NOT NULL AND dc.content_tsv @@ q.q_fuzzy)
				OR (q.q_alt_phrase IS NOT NULL AND dc.content_tsv @@ q.q_alt_phrase)
				OR (q.q_alt_fuzzy IS NOT NULL AND dc.content_tsv @@ q.q_alt_fuzzy)
			)
		ORDER BY score DESC
		LIMIT $7`

	rows, err := s.pool.Query(ctx, query, indexID, exactPhrase, loosePhrase, fuzzy, altPhrase, altFuzzy, fetchK)
	if err != nil {
		return nil, fmt.Errorf("store.LexicalSearch: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		var metaJSON []byte
		if err := rows.Scan(
			&h.Chunk.ID, &h.Chunk.DocumentID, &h.Chunk.ChunkIndex, &h.Chunk.Text,
			&h.Chunk.Page, &h.Chunk.StartChar, &h.Chunk.EndChar, &h.Chunk.Language,
			&h.Chunk.ContentType, &metaJSON, &h.Score,
		); err != nil {
			return nil, fmt.Errorf("store.LexicalSearch: scan: %w", err)
		}
		if err := unmarshalChunkMetadata(metaJSON, &h.Chunk); err != nil {
			slog.Warn("[STORE] malformed chunk metadata", "chunk_id", h.Chunk.ID, "error", err)
		}
		hits = append(hits, h)
	}

	slog.Debug("[STORE] lexical search complete", "index_id", indexID, "hits", len(hits))
	return hits, rows.Err()
}

// proximityTsQuery builds a raw tsquery string joining content words with a
// distance operator: slop 1 uses <-> (strict adjacency); slop N>1 uses <N>.
// Returns "" if fewer than two content words remain after stopword removal.
func proximityTsQuery(text string, slop int) string {
	words := textutil.ContentWords(textutil.Tokenize(text), 1)
	if len(words) < 2 {
		return ""
	}
	op := "<->"
	if slop > 1 {
		op = fmt.Sprintf("<%d>", slop)
	}
	return strings.Join(words, op)
}

// orTsQuery builds a raw tsquery string matching any content word, the
// approximation used for the "flexible multi-field match with fuzziness"
// clause (spec §4.2).
func orTsQuery(text string) string {
	words := textutil.ContentWords(textutil.Tokenize(text), 1)
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, " | ")
}
