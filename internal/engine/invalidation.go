package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
)

// invalidationEvent is the message body ingestion publishes when a document
// finishes (re)indexing or is deleted (spec §9 "Global LLM/embedding
// clients -> dependency injection" extends naturally to "global cache
// invalidation -> an injected subscriber"; spec §3 "DocumentIndexMap ...
// ingestion triggers atomic replacement of the map").
type invalidationEvent struct {
	DocumentID string `json:"document_id"`
}

// invalidationSubscriber pulls document-invalidation events published by the
// ingestion pipeline and drives Engine.InvalidateCache, keeping the core's
// DocumentIndexMap and TTL caches in sync with out-of-process writes.
type invalidationSubscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	engine *Engine

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// newInvalidationSubscriber dials Pub/Sub and resolves the named
// subscription. It does not start pulling until Start is called.
func newInvalidationSubscriber(ctx context.Context, projectID, subscriptionID string, e *Engine) (*invalidationSubscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("engine.newInvalidationSubscriber: %w", err)
	}
	return &invalidationSubscriber{
		client: client,
		sub:    client.Subscription(subscriptionID),
		engine: e,
		done:   make(chan struct{}),
	}, nil
}

// Start begins pulling invalidation events in a background goroutine. Each
// message is acked after InvalidateCache returns, successful or not — a
// failed refresh is retried on the next ingestion event or process restart
// rather than redelivered indefinitely (spec §7: Oversize/Validation-class
// failures are never fatal, and cache invalidation is idempotent).
func (s *invalidationSubscriber) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.done)
		err := s.sub.Receive(runCtx, func(msgCtx context.Context, msg *pubsub.Message) {
			var evt invalidationEvent
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				slog.Warn("engine.invalidationSubscriber: malformed message, acking to drop", "error", err)
				msg.Ack()
				return
			}
			if err := s.engine.InvalidateCache(msgCtx, evt.DocumentID); err != nil {
				slog.Error("engine.invalidationSubscriber: InvalidateCache failed", "document_id", evt.DocumentID, "error", err)
			} else {
				slog.Info("[CACHE] invalidation event processed", "document_id", evt.DocumentID)
			}
			msg.Ack()
		})
		if err != nil && runCtx.Err() == nil {
			slog.Error("engine.invalidationSubscriber: Receive stopped", "error", err)
		}
	}()
}

// Stop cancels the pull loop and closes the Pub/Sub client, blocking until
// the receive goroutine has exited.
func (s *invalidationSubscriber) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		s.client.Close()
	})
}
