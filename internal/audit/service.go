package audit

import (
	"context"
	"time"
)

// Store is the write-only boundary to the audit log.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// Service captures structured audit entries. It is append-only and uses the
// store boundary for persistence so tests can swap sinks easily.
type Service struct {
	store Store
}

// NewService constructs the audit service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record stamps the entry time if unset and appends it to the sink.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.store.Append(ctx, entry)
}
