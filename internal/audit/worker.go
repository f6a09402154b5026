package audit

import (
	"context"
	"log/slog"
)

// ChannelStore is a Store that only enqueues. It decouples the override
// path from a slow sink: Append returns as soon as the entry is buffered,
// and a Worker drains the inbox into the real store.
type ChannelStore struct {
	inbox chan Entry
}

// NewChannelStore constructs a channel-backed store with the given buffer.
func NewChannelStore(buffer int) *ChannelStore {
	return &ChannelStore{inbox: make(chan Entry, buffer)}
}

// Append enqueues the entry, blocking only when the buffer is full.
func (s *ChannelStore) Append(ctx context.Context, entry Entry) error {
	select {
	case s.inbox <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox exposes the drain side for a Worker.
func (s *ChannelStore) Inbox() <-chan Entry {
	return s.inbox
}

// Worker drains queued audit entries into the backing store. A failed
// append is logged and the entry dropped rather than stopping the drain:
// the override itself is already durable in the ledger, and the audit
// trail must not wedge on a sink outage.
type Worker struct {
	store  Store
	inbox  <-chan Entry
	logger *slog.Logger
}

// NewWorker constructs a worker draining inbox into store.
func NewWorker(store Store, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.store.Append(ctx, entry); err != nil {
				w.logger.ErrorContext(ctx, "audit entry append failed",
					"resource_type", entry.ResourceType,
					"resource_id", entry.ResourceID,
					"action", entry.Action,
					"error", err,
				)
			}
		}
	}
}
