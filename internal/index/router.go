// Package index resolves a document's display name to the physical index
// (or shard) that holds its chunks, and mints new index names for documents
// that have never been indexed before.
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Router is the in-memory DocumentIndexMap (spec §3, §4.1). Entries are
// sourced from the document registry at startup and kept current by
// Register calls as documents are (re-)indexed.
type Router struct {
	mu      sync.RWMutex
	byName  map[string]model.IndexEntry
	indexes map[string]struct{} // every index name in use, text or image
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		byName:  make(map[string]model.IndexEntry),
		indexes: make(map[string]struct{}),
	}
}

// Load seeds the Router from a full set of registry entries, e.g. read at
// startup from the store. Replaces any existing state.
func (r *Router) Load(entries []model.IndexEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName = make(map[string]model.IndexEntry, len(entries))
	r.indexes = make(map[string]struct{}, len(entries)*2)
	for _, e := range entries {
		r.byName[e.DocumentName] = e
		r.indexes[e.IndexName] = struct{}{}
		if e.ImageIndex != "" {
			r.indexes[e.ImageIndex] = struct{}{}
		}
	}
}

// Resolve returns the text index name for a document name. ok is false if
// the document has never been registered.
func (r *Router) Resolve(documentName string) (indexName string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.byName[documentName]
	if !found || e.IndexName == "" {
		return "", false
	}
	return e.IndexName, true
}

// ResolveImages returns the OCR/image index name for a document name. ok is
// false if the document has no image index registered.
func (r *Router) ResolveImages(documentName string) (indexName string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.byName[documentName]
	if !found || e.ImageIndex == "" {
		return "", false
	}
	return e.ImageIndex, true
}

// Register assigns (or reassigns) the index entry for a document name,
// minting a collision-free index name if one is not supplied. Callers that
// already hold an index name (e.g. loaded from the store) should pass it in
// directly rather than relying on minting.
func (r *Router) Register(documentName, indexName, imageIndexName string) model.IndexEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if indexName == "" {
		indexName = r.findNextAvailableIndexNameLocked(sanitizeIndexName(documentName))
	}
	entry := model.IndexEntry{
		DocumentName: documentName,
		IndexName:    indexName,
		ImageIndex:   imageIndexName,
	}
	r.byName[documentName] = entry
	r.indexes[indexName] = struct{}{}
	if imageIndexName != "" {
		r.indexes[imageIndexName] = struct{}{}
	}
	return entry
}

// Unregister removes a document's entries, e.g. after deletion. The
// underlying index name is freed for reuse by findNextAvailableIndexName.
func (r *Router) Unregister(documentName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[documentName]
	if !ok {
		return
	}
	delete(r.byName, documentName)
	delete(r.indexes, e.IndexName)
	if e.ImageIndex != "" {
		delete(r.indexes, e.ImageIndex)
	}
}

// Entries returns a sorted snapshot of every registered mapping, primarily
// for fanout (C3) to enumerate all indexes to search.
func (r *Router) Entries() []model.IndexEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.IndexEntry, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentName < out[j].DocumentName })
	return out
}

const maxIndexNameLen = 255
const maxCollisionAttempts = 1000

// sanitizeIndexName derives a store-safe index name from a document's
// display name: lowercase, [a-z0-9_-] only, collapsed dashes, and a letter
// or underscore as the first character.
func sanitizeIndexName(documentName string) string {
	lower := strings.ToLower(documentName)
	var b strings.Builder
	b.Grow(len(lower))
	lastDash := false
	for _, c := range lower {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
			lastDash = false
		default:
			// spec §4.1: replace any character outside [a-z0-9_-] with '-',
			// collapsing consecutive replacements into one.
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	name := strings.Trim(b.String(), "-")

	if name == "" {
		name = "document"
	}
	if len(name) > maxIndexNameLen {
		name = strings.Trim(name[:maxIndexNameLen], "-")
	}
	if first := name[0]; !((first >= 'a' && first <= 'z') || first == '_') {
		name = "doc-" + name
		if len(name) > maxIndexNameLen {
			name = name[:maxIndexNameLen]
		}
	}
	return name
}

// findNextAvailableIndexNameLocked appends -1, -2, ... to base until a free
// name is found, capping at maxCollisionAttempts to avoid an unbounded loop
// against a pathological number of same-named documents. Caller holds mu.
func (r *Router) findNextAvailableIndexNameLocked(base string) string {
	if _, taken := r.indexes[base]; !taken {
		return base
	}
	for i := 1; i <= maxCollisionAttempts; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if len(candidate) > maxIndexNameLen {
			candidate = candidate[:maxIndexNameLen]
		}
		if _, taken := r.indexes[candidate]; !taken {
			return candidate
		}
	}
	// Exhausted the collision budget; fall back to a name that is very
	// unlikely to already be registered rather than looping forever.
	return fmt.Sprintf("%s-%d", base, len(r.indexes)+1)
}
