package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// RedisMirror is an optional secondary cache in front of the per-process
// SearchCache (spec §9 "Caches as process-wide globals -> owned by an
// injectable CacheManager"). It exists purely as a cross-process warm-start:
// a process that restarts can serve a hit from Redis instead of recomputing
// a hybrid search, but the in-process SearchCache remains the invariant-
// bearing cache (TTL/LRU eviction, invalidation-on-ingestion) described by
// spec §3/§5. A Redis miss or error always falls through to the normal
// backend search path; it never becomes a request failure.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisMirror dials a Redis client lazily (go-redis does not connect
// until the first command). addr == "" disables the mirror.
func NewRedisMirror(addr string, ttl time.Duration) *RedisMirror {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisMirror{client: client, ttl: ttl, prefix: "ragbox:search:"}
}

// Get attempts a warm-start read. Any Redis-side error (including "not
// connected") is logged and treated as a miss.
func (m *RedisMirror) Get(ctx context.Context, key string) (*SearchResult, bool) {
	if m == nil {
		return nil, false
	}
	raw, err := m.client.Get(ctx, m.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("[CACHE] redis mirror get error", "key", key, "error", err)
		}
		return nil, false
	}
	var chunks []model.ScoredChunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		slog.Warn("[CACHE] redis mirror decode error", "key", key, "error", err)
		return nil, false
	}
	return &SearchResult{Chunks: chunks}, true
}

// Set mirrors a freshly computed search result into Redis, best-effort.
func (m *RedisMirror) Set(ctx context.Context, key string, result *SearchResult) {
	if m == nil || result == nil {
		return
	}
	raw, err := json.Marshal(result.Chunks)
	if err != nil {
		slog.Warn("[CACHE] redis mirror encode error", "key", key, "error", err)
		return
	}
	if err := m.client.Set(ctx, m.prefix+key, raw, m.ttl).Err(); err != nil {
		slog.Debug("[CACHE] redis mirror set error", "key", key, "error", err)
	}
}

// InvalidateIndex drops every mirrored key for one index, or every mirrored
// search key if indexID is empty. Redis has no direct prefix-delete;
// SCAN+DEL keeps this from blocking the server on a large keyspace.
func (m *RedisMirror) InvalidateIndex(ctx context.Context, indexID string) {
	if m == nil {
		return
	}
	pattern := m.prefix + "sc:" + indexID + ":*"
	if indexID == "" {
		pattern = m.prefix + "sc:*"
	}
	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Debug("[CACHE] redis mirror scan error", "index_id", indexID, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		slog.Debug("[CACHE] redis mirror del error", "index_id", indexID, "error", err)
	}
}

// Close releases the underlying Redis connection pool.
func (m *RedisMirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
