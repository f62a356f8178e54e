// Package cache provides in-memory, TTL- and size-bounded caching for the
// retrieval core: hybrid search results and query embedding vectors.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// SearchResult is the cached payload for one hybrid search call.
type SearchResult struct {
	Chunks []model.ScoredChunk
}

// SearchCache caches hybrid-search results keyed on every input that affects
// the result set: index, query text, k, fusion weights, filter, and score
// floor (spec §3, §4.2). Bounded to MaxSize entries; once exceeded, the
// oldest half is evicted in one pass rather than evicting one at a time.
type SearchCache struct {
	mu       sync.RWMutex
	entries  map[string]*searchCacheEntry
	ttl      time.Duration
	maxSize  int
	stopCh   chan struct{}
	mirror   *RedisMirror
	name     string
	recorder MetricsRecorder
}

// MetricsRecorder is the narrow slice of internal/metrics.Metrics that
// SearchCache needs; kept local so this package does not import metrics
// (spec §9: components accept interfaces, not concrete global clients).
type MetricsRecorder interface {
	RecordCacheHit(cacheName, tier string)
	RecordCacheMiss(cacheName string)
}

// SetMirror attaches an optional cross-process warm-start mirror (spec
// SPEC_FULL DOMAIN STACK: go-redis as "optional secondary mirror for the
// C2/C5 TTL caches"). Passing nil disables mirroring.
func (c *SearchCache) SetMirror(m *RedisMirror) {
	c.mu.Lock()
	c.mirror = m
	c.mu.Unlock()
}

// SetMetrics attaches a Prometheus recorder and a name ("search" or
// "image") used as the cache label on emitted metrics.
func (c *SearchCache) SetMetrics(r MetricsRecorder, name string) {
	c.mu.Lock()
	c.recorder = r
	c.name = name
	c.mu.Unlock()
}

type searchCacheEntry struct {
	result    *SearchResult
	createdAt time.Time
	expiresAt time.Time
}

// NewSearchCache creates a SearchCache and starts its background cleanup
// goroutine. A ttl of 0 disables caching (Get always misses).
func NewSearchCache(ttl time.Duration, maxSize int) *SearchCache {
	c := &SearchCache{
		entries: make(map[string]*searchCacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// SearchKey builds the composite key described in spec §3: all of the inputs
// that can change the result set for an otherwise-identical query text.
func SearchKey(indexID, queryText string, k int, semanticWeight, keywordWeight float64, filterHash string, minScore float64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%f|%f|%s|%f",
		indexID, normalizeQuery(queryText), k, semanticWeight, keywordWeight, filterHash, minScore)))
	return fmt.Sprintf("sc:%s:%x", indexID, h[:12])
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Get returns a cached SearchResult if present and not expired.
func (c *SearchCache) Get(key string) (*SearchResult, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	slog.Debug("[CACHE] search hit", "key", key, "age_ms", time.Since(entry.createdAt).Milliseconds())
	return entry.result, true
}

// Set stores a SearchResult, evicting the oldest half of entries first if
// the cache is at capacity.
func (c *SearchCache) Set(key string, result *SearchResult) {
	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	c.mu.Lock()
	if len(c.entries) >= c.maxSize {
		c.evictOldestHalfLocked()
	}
	c.entries[key] = &searchCacheEntry{
		result:    result,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	total := len(c.entries)
	c.mu.Unlock()

	slog.Debug("[CACHE] search set", "key", key, "ttl_s", int(c.ttl.Seconds()), "total_entries", total)
}

// GetOrMirror behaves like Get, but on a local miss falls through to the
// Redis mirror (if attached) before reporting a miss to the caller.
func (c *SearchCache) GetOrMirror(ctx context.Context, key string) (*SearchResult, bool) {
	c.mu.RLock()
	recorder, name, mirror := c.recorder, c.name, c.mirror
	c.mu.RUnlock()

	if result, ok := c.Get(key); ok {
		if recorder != nil {
			recorder.RecordCacheHit(name, "memory")
		}
		return result, true
	}
	if mirror == nil {
		if recorder != nil {
			recorder.RecordCacheMiss(name)
		}
		return nil, false
	}
	result, ok := mirror.Get(ctx, key)
	if ok {
		slog.Debug("[CACHE] redis mirror hit", "key", key)
		if recorder != nil {
			recorder.RecordCacheHit(name, "redis")
		}
		return result, true
	}
	if recorder != nil {
		recorder.RecordCacheMiss(name)
	}
	return nil, false
}

// SetAndMirror behaves like Set and also best-effort mirrors the result to
// Redis (if attached) for warm-start after a process restart.
func (c *SearchCache) SetAndMirror(ctx context.Context, key string, result *SearchResult) {
	c.Set(key, result)
	c.mu.RLock()
	mirror := c.mirror
	c.mu.RUnlock()
	if mirror != nil {
		mirror.Set(ctx, key, result)
	}
}

// evictOldestHalfLocked removes the oldest ceil(n/2) entries. Caller holds mu.
func (c *SearchCache) evictOldestHalfLocked() {
	type keyed struct {
		key       string
		createdAt time.Time
	}
	ordered := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		ordered = append(ordered, keyed{k, e.createdAt})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].createdAt.Before(ordered[j].createdAt) })

	evict := (len(ordered) + 1) / 2
	for i := 0; i < evict; i++ {
		delete(c.entries, ordered[i].key)
	}
	slog.Info("[CACHE] search eviction", "evicted", evict, "remaining", len(c.entries))
}

// InvalidateIndex removes all cached entries for an index, or every entry
// if indexID is empty (spec §4.2 invalidate(index_id?), §6
// invalidate_cache(document_id?)). Called on document upload, deletion, or
// re-indexing (C1 register/resolve changes).
func (c *SearchCache) InvalidateIndex(indexID string) {
	c.mu.Lock()
	count := 0
	if indexID == "" {
		count = len(c.entries)
		clear(c.entries)
	} else {
		prefix := "sc:" + indexID + ":"
		for key := range c.entries {
			if strings.HasPrefix(key, prefix) {
				delete(c.entries, key)
				count++
			}
		}
	}
	mirror := c.mirror
	c.mu.Unlock()

	if count > 0 {
		slog.Info("[CACHE] invalidated index", "index_id", indexID, "entries_removed", count)
	}
	if mirror != nil {
		mirror.InvalidateIndex(context.Background(), indexID)
	}
}

// Len returns the number of entries currently cached.
func (c *SearchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *SearchCache) Stop() {
	close(c.stopCh)
}

func (c *SearchCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			before := len(c.entries)
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			after := len(c.entries)
			c.mu.Unlock()
			if before != after {
				slog.Info("[CACHE] search cleanup", "removed", before-after, "remaining", after)
			}
		case <-c.stopCh:
			return
		}
	}
}
