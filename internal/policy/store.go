package policy

import (
	"context"
	"sync"

	id "callwatch/pkg/domain"
)

// Store loads policies for evaluation. The engine never writes policies;
// the host application's policy-management API owns mutation.
type Store interface {
	// ListEnabled returns enabled policies for the organization ordered by
	// (priority asc, id asc).
	ListEnabled(ctx context.Context, orgID id.OrgID) ([]*Policy, error)
}

// MemoryStore is a mutex-guarded in-memory policy store for tests and dev
// mode. Unlike the ledger it supports replacement, since policies are the
// one mutable configuration family.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[id.PolicyID]*Policy
}

// NewMemory constructs an empty in-memory policy store.
func NewMemory() *MemoryStore {
	return &MemoryStore{policies: make(map[id.PolicyID]*Policy)}
}

// Put inserts or replaces a policy.
func (s *MemoryStore) Put(p *Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.policies[p.ID] = &copied
}

func (s *MemoryStore) ListEnabled(_ context.Context, orgID id.OrgID) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Policy
	for _, p := range s.policies {
		if p.OrgID != orgID || !p.IsEnabled {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	SortByPriority(out)
	return out, nil
}
