package ledger

import (
	"context"
	"sort"
	"sync"

	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
	"callwatch/pkg/platform/sentinel"
)

// MemoryLedger keeps the initial implementation lightweight and testable. It
// intentionally favors clarity over performance: appends clone their input
// and reads return clones, so stored history cannot be mutated through
// retained pointers.
type MemoryLedger struct {
	mu        sync.RWMutex
	events    map[id.EventID]*models.AttentionEvent
	eventLog  []*models.AttentionEvent
	decisions map[id.DecisionID]*models.AttentionDecision
	decLog    []*models.AttentionDecision
	digests   map[id.DigestID]*models.Digest
	digestLog []*models.Digest
}

// NewMemory constructs an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{
		events:    make(map[id.EventID]*models.AttentionEvent),
		decisions: make(map[id.DecisionID]*models.AttentionDecision),
		digests:   make(map[id.DigestID]*models.Digest),
	}
}

func (l *MemoryLedger) AppendEvent(_ context.Context, event *models.AttentionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.events[event.ID]; exists {
		return sentinel.ErrAppendOnly
	}
	stored := cloneEvent(event)
	l.events[event.ID] = stored
	l.eventLog = append(l.eventLog, stored)
	return nil
}

func (l *MemoryLedger) GetEvent(_ context.Context, orgID id.OrgID, eventID id.EventID) (*models.AttentionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	event, ok := l.events[eventID]
	if !ok || event.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvent(event), nil
}

func (l *MemoryLedger) QueryEvents(_ context.Context, filter EventFilter) ([]*models.AttentionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.AttentionEvent
	for _, event := range l.eventLog {
		if !matchesEvent(event, filter) {
			continue
		}
		out = append(out, cloneEvent(event))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLedger) AppendDecision(_ context.Context, decision *models.AttentionDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.decisions[decision.ID]; exists {
		return sentinel.ErrAppendOnly
	}
	stored := cloneDecision(decision)
	l.decisions[decision.ID] = stored
	l.decLog = append(l.decLog, stored)
	return nil
}

func (l *MemoryLedger) QueryDecisions(_ context.Context, filter DecisionFilter) ([]*models.AttentionDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.AttentionDecision
	for _, decision := range l.decLog {
		if !matchesDecision(decision, filter) {
			continue
		}
		out = append(out, cloneDecision(decision))
	}
	sortDecisions(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) CurrentDecision(_ context.Context, orgID id.OrgID, eventID id.EventID) (*models.AttentionDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var current *models.AttentionDecision
	for _, decision := range l.decLog {
		if decision.OrgID != orgID || decision.EventID != eventID {
			continue
		}
		if current == nil || decision.After(current) {
			current = decision
		}
	}
	if current == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneDecision(current), nil
}

func (l *MemoryLedger) AppendDigest(_ context.Context, digest *models.Digest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.digests[digest.ID]; exists {
		return sentinel.ErrAppendOnly
	}
	stored := *digest
	l.digests[digest.ID] = &stored
	l.digestLog = append(l.digestLog, &stored)
	return nil
}

func (l *MemoryLedger) QueryDigests(_ context.Context, filter DigestFilter) ([]*models.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.Digest
	for _, digest := range l.digestLog {
		if !filter.OrgID.IsNil() && digest.OrgID != filter.OrgID {
			continue
		}
		if !filter.From.IsZero() && digest.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !digest.CreatedAt.Before(filter.To) {
			continue
		}
		copied := *digest
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Counts returns row counts per record family. Test helper for verifying
// that failed mutations leave history untouched.
func (l *MemoryLedger) Counts() (events, decisions, digests int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.eventLog), len(l.decLog), len(l.digestLog)
}

func matchesEvent(event *models.AttentionEvent, filter EventFilter) bool {
	if !filter.OrgID.IsNil() && event.OrgID != filter.OrgID {
		return false
	}
	if filter.EventType != "" && event.EventType != filter.EventType {
		return false
	}
	if filter.SourceTable != "" && event.SourceTable != filter.SourceTable {
		return false
	}
	if filter.SourceID != "" && event.SourceID != filter.SourceID {
		return false
	}
	if !filter.From.IsZero() && event.OccurredAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && !event.OccurredAt.Before(filter.To) {
		return false
	}
	return true
}

func matchesDecision(decision *models.AttentionDecision, filter DecisionFilter) bool {
	if !filter.OrgID.IsNil() && decision.OrgID != filter.OrgID {
		return false
	}
	if !filter.EventID.IsNil() && decision.EventID != filter.EventID {
		return false
	}
	if filter.Kind != "" && decision.Kind != filter.Kind {
		return false
	}
	if !filter.From.IsZero() && decision.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && !decision.CreatedAt.Before(filter.To) {
		return false
	}
	return true
}

func cloneEvent(event *models.AttentionEvent) *models.AttentionEvent {
	copied := *event
	copied.Payload = models.ClonePayload(event.Payload)
	copied.InputRefs = models.CloneRefs(event.InputRefs)
	return &copied
}

func cloneDecision(decision *models.AttentionDecision) *models.AttentionDecision {
	copied := *decision
	copied.InputRefs = models.CloneRefs(decision.InputRefs)
	if decision.PolicyID != nil {
		policyID := *decision.PolicyID
		copied.PolicyID = &policyID
	}
	return &copied
}

// sortDecisions orders decisions by (CreatedAt, ID) ascending. The append
// log is insertion-ordered but may receive out-of-order CreatedAt values
// from clock-injected tests.
func sortDecisions(decisions []*models.AttentionDecision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[j].After(decisions[i])
	})
}
