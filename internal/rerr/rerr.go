// Package rerr defines the typed error taxonomy the retrieval core returns
// instead of relying on exceptions for control flow (spec Design Notes §9).
// Only configuration errors at startup are fatal; everything here is
// recovered or surfaced to the caller per component policy.
package rerr

import "fmt"

// DimensionMismatch is returned when an embedding model's output dimension
// does not match the index's configured vector dimension. Recoverable only
// via an explicit recreate-on-mismatch flag (spec §4.2, §7).
type DimensionMismatch struct {
	IndexID     string
	ExpectedDim int
	GotDim      int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("index %q expects vector dimension %d, got %d", e.IndexID, e.ExpectedDim, e.GotDim)
}

func NewDimensionMismatch(indexID string, expected, got int) *DimensionMismatch {
	return &DimensionMismatch{IndexID: indexID, ExpectedDim: expected, GotDim: got}
}

// BackendUnavailable wraps a failure to reach the vector store, embedding
// provider, or LLM. Callers apply the per-call fallback described in spec §7
// rather than propagating this type directly to users.
type BackendUnavailable struct {
	Backend string // "vector_store" | "embedding" | "llm" | "reranker"
	Cause   error
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Backend, e.Cause)
}

func (e *BackendUnavailable) Unwrap() error { return e.Cause }

func NewBackendUnavailable(backend string, cause error) *BackendUnavailable {
	return &BackendUnavailable{Backend: backend, Cause: cause}
}

// EmptySelection signals that no known indexes matched the requested active
// sources. Not an error condition for the caller: it resolves to an empty
// result, never a failed query.
type EmptySelection struct {
	Requested []string
}

func (e *EmptySelection) Error() string {
	return fmt.Sprintf("no known indexes for active sources %v", e.Requested)
}

func NewEmptySelection(requested []string) *EmptySelection {
	return &EmptySelection{Requested: requested}
}

// Oversize signals a context that exceeded its token budget. Always
// recovered by truncation (spec §4.7.1); never surfaced to the end user.
type Oversize struct {
	TokenCount int
	Budget     int
}

func (e *Oversize) Error() string {
	return fmt.Sprintf("context %d tokens exceeds budget %d", e.TokenCount, e.Budget)
}

func NewOversize(tokenCount, budget int) *Oversize {
	return &Oversize{TokenCount: tokenCount, Budget: budget}
}

// Validation covers inline, non-fatal data problems: a page number out of
// range, a source that could not be resolved. Handled with confidence
// degradation rather than failure.
type Validation struct {
	Field  string
	Reason string
}

func (e *Validation) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) *Validation {
	return &Validation{Field: field, Reason: reason}
}
