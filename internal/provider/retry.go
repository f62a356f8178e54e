// Package provider adapts external services — Vertex AI embeddings,
// Gemini generation, and the cross-encoder reranker — into the narrow
// interfaces the retrieval core consumes.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/rerr"
)

// ErrRateLimited is the cause wrapped in a *rerr.BackendUnavailable when a
// provider call exhausts every retry on a 429 response.
var ErrRateLimited = fmt.Errorf("the system is experiencing high demand, please try again in a few seconds")

// retryConfig holds the backoff schedule applied to every provider adapter's
// rate-limit mitigation (embedding, generation, reranker).
var retryConfig = struct {
	delays  []time.Duration
	ceiling time.Duration
}{
	delays:  []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
	ceiling: 4 * time.Second,
}

// isRetryableError checks if an error is a rate-limit error. Works for both
// SDK errors (which embed status codes in the message) and REST responses.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

// isRetryableStatus checks if an HTTP status code warrants a retry.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// withRetry executes fn up to len(retryConfig.delays)+1 times, retrying on
// 429/rate-limit errors. Backoff: 500ms -> 1000ms -> 2000ms, capped at 4s.
// backend identifies which external collaborator is being called
// ("embedding", "llm", "reranker") and matches the vocabulary
// rerr.BackendUnavailable.Backend already uses elsewhere in the core (spec
// §7 BackendUnavailable), so a caller that does errors.As on the result of
// EmbedQuery/GenerateContent/Rerank gets the same typed error whether the
// failure came from a dead connection or an exhausted rate-limit retry loop.
func withRetry[T any](ctx context.Context, backend, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}

	if !isRetryableError(err) {
		return result, err
	}

	for i, delay := range retryConfig.delays {
		if delay > retryConfig.ceiling {
			delay = retryConfig.ceiling
		}

		slog.Warn("provider rate limited, retrying",
			"backend", backend,
			"operation", operation,
			"attempt", i+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("provider.%s %s: context cancelled during retry: %w", backend, operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("provider retry succeeded", "backend", backend, "operation", operation, "attempt", i+2)
			return result, nil
		}

		if !isRetryableError(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("provider retries exhausted", "backend", backend, "operation", operation, "attempts", len(retryConfig.delays)+1)
	return zero, rerr.NewBackendUnavailable(backend, ErrRateLimited)
}
