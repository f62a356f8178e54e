package citation

import (
	"path"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// resolveSource runs the six-tier source-extraction chain (spec §4.5.1),
// stopping at the first match. Every result is normalized to a basename.
func (b *Builder) resolveSource(chunk model.Chunk, fallback []string, knownByDocID map[string]string) (string, float64) {
	if s := chunk.Metadata.Source; s != "" {
		if b.validated(s) {
			return basename(s), 1.0
		}
	}
	if s := chunk.Source; s != "" && b.validated(s) {
		return basename(s), 1.0
	}

	for _, alt := range []string{chunk.Metadata.DocumentName, chunk.Metadata.FileName, chunk.Metadata.Filename, chunk.Metadata.DocName} {
		if alt != "" && b.validated(alt) {
			return basename(alt), 0.7
		}
	}

	if m := sourceMarkerPattern.FindStringSubmatch(chunk.Text); len(m) > 1 {
		if name := strings.TrimSpace(m[1]); name != "" {
			return basename(name), 0.5
		}
	}

	if name, ok := knownByDocID[chunk.DocumentID]; ok {
		return basename(name), 0.3
	}

	if len(fallback) > 0 && fallback[0] != "" {
		return basename(fallback[0]), 0.1
	}

	return "Unknown", 0.0
}

// validated reports whether name resolves to a known document in the
// DocumentIndexMap. A nil DocumentIndex (tests, or a Builder constructed
// without one) treats any non-empty name as valid, since there is nothing
// to validate against.
func (b *Builder) validated(name string) bool {
	if b.docIndex == nil {
		return name != ""
	}
	if _, ok := b.docIndex.Resolve(name); ok {
		return true
	}
	// Registered names are often already basenames; a caller-supplied name
	// with a path should still match.
	_, ok := b.docIndex.Resolve(basename(name))
	return ok
}

// basename normalizes a source name to its final path component, with no
// path separators (spec §3, §4.5.1).
func basename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base(name)
}
