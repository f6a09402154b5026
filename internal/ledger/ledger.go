// Package ledger provides the append-only store for events, decisions, and
// digests. The interface deliberately has no update or delete methods; the
// postgres implementation additionally relies on database privileges and
// triggers so a bug bypassing the interface still cannot rewrite history.
package ledger

import (
	"context"
	"time"

	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
)

// EventFilter scopes event queries. Zero fields are ignored. Time bounds are
// half-open: [From, To).
type EventFilter struct {
	OrgID       id.OrgID
	EventType   string
	SourceTable string
	SourceID    string
	From        time.Time
	To          time.Time
	Limit       int
}

// DecisionFilter scopes decision queries.
type DecisionFilter struct {
	OrgID   id.OrgID
	EventID id.EventID
	Kind    models.DecisionKind
	From    time.Time
	To      time.Time
	Limit   int
}

// DigestFilter scopes digest queries.
type DigestFilter struct {
	OrgID id.OrgID
	From  time.Time
	To    time.Time
	Limit int
}

// Ledger is the append-only storage boundary. Implementations must reject
// any write that would replace an existing record with
// sentinel.ErrAppendOnly, and must return records ordered by (CreatedAt, ID)
// ascending so callers see a stable history.
type Ledger interface {
	AppendEvent(ctx context.Context, event *models.AttentionEvent) error
	GetEvent(ctx context.Context, orgID id.OrgID, eventID id.EventID) (*models.AttentionEvent, error)
	QueryEvents(ctx context.Context, filter EventFilter) ([]*models.AttentionEvent, error)

	AppendDecision(ctx context.Context, decision *models.AttentionDecision) error
	QueryDecisions(ctx context.Context, filter DecisionFilter) ([]*models.AttentionDecision, error)
	// CurrentDecision returns the latest decision for the event by
	// (CreatedAt, ID), or sentinel.ErrNotFound when none exists yet.
	CurrentDecision(ctx context.Context, orgID id.OrgID, eventID id.EventID) (*models.AttentionDecision, error)

	AppendDigest(ctx context.Context, digest *models.Digest) error
	QueryDigests(ctx context.Context, filter DigestFilter) ([]*models.Digest, error)
}
