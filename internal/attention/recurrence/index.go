// Package recurrence tracks "recently seen" sources for the
// recurring-suppress evaluator. The index has first-observer semantics:
// checking and marking are one atomic operation, so two concurrent emits
// for the same source cannot both conclude that nothing recent exists.
package recurrence

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "callwatch/pkg/domain"
)

// Index is the consistency boundary for recurrence checks.
type Index interface {
	// CheckAndMark reports whether the key was observed within the window.
	// When it was not, the key is atomically marked as observed so
	// concurrent callers for the same key serialize on this operation.
	CheckAndMark(ctx context.Context, key string, window time.Duration) (seen bool, err error)
}

// Key builds the per-source index key. Scoped by organization so tenants
// never interact.
func Key(orgID id.OrgID, eventType, sourceID string) string {
	return fmt.Sprintf("recurrence:%s:%s:%s", orgID, eventType, sourceID)
}

// MemoryIndex is a mutex-guarded map for tests and dev mode.
type MemoryIndex struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	clock func() time.Time
}

// NewMemory constructs an empty in-memory index.
func NewMemory() *MemoryIndex {
	return &MemoryIndex{seen: make(map[string]time.Time), clock: time.Now}
}

// WithClock overrides the clock for tests and returns the index.
func (i *MemoryIndex) WithClock(clock func() time.Time) *MemoryIndex {
	i.clock = clock
	return i
}

func (i *MemoryIndex) CheckAndMark(_ context.Context, key string, window time.Duration) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.clock()
	if last, ok := i.seen[key]; ok && now.Sub(last) < window {
		return true, nil
	}
	i.seen[key] = now
	return false, nil
}
