package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
	"callwatch/pkg/platform/sentinel"
)

func newTestEvent(orgID id.OrgID, eventType string, occurredAt time.Time) *models.AttentionEvent {
	return &models.AttentionEvent{
		ID:          id.NewEventID(),
		OrgID:       orgID,
		EventType:   eventType,
		SourceTable: "calls",
		SourceID:    "call-1",
		OccurredAt:  occurredAt,
		Payload:     map[string]any{"severity": 3.0},
		InputRefs:   []models.InputRef{{Table: "calls", ID: "call-1"}},
		CreatedAt:   occurredAt,
	}
}

func newTestDecision(event *models.AttentionEvent, kind models.DecisionKind, createdAt time.Time) *models.AttentionDecision {
	return &models.AttentionDecision{
		ID:         id.NewDecisionID(),
		EventID:    event.ID,
		OrgID:      event.OrgID,
		Kind:       kind,
		Reason:     "test",
		Confidence: 1.0,
		Producer:   id.SystemActor(),
		InputRefs:  models.CloneRefs(event.InputRefs),
		CreatedAt:  createdAt,
	}
}

func TestAppendOnlyRejectsReplacement(t *testing.T) {
	ctx := context.Background()
	led := NewMemory()
	orgID := id.NewOrgID()
	now := time.Now()

	event := newTestEvent(orgID, "call_completed", now)
	require.NoError(t, led.AppendEvent(ctx, event))

	// Re-appending the same id is an attempted overwrite.
	replay := *event
	replay.EventType = "tampered"
	err := led.AppendEvent(ctx, &replay)
	require.ErrorIs(t, err, sentinel.ErrAppendOnly)

	events, decisions, digests := led.Counts()
	assert.Equal(t, 1, events)
	assert.Equal(t, 0, decisions)
	assert.Equal(t, 0, digests)

	stored, err := led.GetEvent(ctx, orgID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "call_completed", stored.EventType)

	decision := newTestDecision(event, models.DecisionEscalate, now)
	require.NoError(t, led.AppendDecision(ctx, decision))
	require.ErrorIs(t, led.AppendDecision(ctx, decision), sentinel.ErrAppendOnly)

	digest := &models.Digest{
		ID:          id.NewDigestID(),
		OrgID:       orgID,
		Type:        models.DigestOnDemand,
		PeriodStart: now.Add(-time.Hour),
		PeriodEnd:   now,
		SummaryText: "test",
		GeneratedBy: "test",
		CreatedAt:   now,
	}
	require.NoError(t, led.AppendDigest(ctx, digest))
	require.ErrorIs(t, led.AppendDigest(ctx, digest), sentinel.ErrAppendOnly)

	events, decisions, digests = led.Counts()
	assert.Equal(t, 1, events)
	assert.Equal(t, 1, decisions)
	assert.Equal(t, 1, digests)
}

func TestStoredRecordsAreIsolatedFromCallers(t *testing.T) {
	ctx := context.Background()
	led := NewMemory()
	orgID := id.NewOrgID()

	event := newTestEvent(orgID, "alert_fired", time.Now())
	require.NoError(t, led.AppendEvent(ctx, event))

	// Mutating the caller's copy after append must not change history.
	event.Payload["severity"] = 99.0
	event.InputRefs[0].ID = "tampered"

	stored, err := led.GetEvent(ctx, orgID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stored.Payload["severity"])
	assert.Equal(t, "call-1", stored.InputRefs[0].ID)

	// Mutating a fetched copy must not change a later read.
	stored.Payload["severity"] = 42.0
	again, err := led.GetEvent(ctx, orgID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, again.Payload["severity"])
}

func TestGetEventScopedToOrganization(t *testing.T) {
	ctx := context.Background()
	led := NewMemory()

	event := newTestEvent(id.NewOrgID(), "call_completed", time.Now())
	require.NoError(t, led.AppendEvent(ctx, event))

	_, err := led.GetEvent(ctx, id.NewOrgID(), event.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestQueryEventsFilters(t *testing.T) {
	ctx := context.Background()
	led := NewMemory()
	orgID := id.NewOrgID()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	early := newTestEvent(orgID, "call_completed", base)
	mid := newTestEvent(orgID, "alert_fired", base.Add(time.Hour))
	late := newTestEvent(orgID, "call_completed", base.Add(2*time.Hour))
	other := newTestEvent(id.NewOrgID(), "call_completed", base)
	for _, e := range []*models.AttentionEvent{early, mid, late, other} {
		require.NoError(t, led.AppendEvent(ctx, e))
	}

	t.Run("by organization", func(t *testing.T) {
		events, err := led.QueryEvents(ctx, EventFilter{OrgID: orgID})
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("by type", func(t *testing.T) {
		events, err := led.QueryEvents(ctx, EventFilter{OrgID: orgID, EventType: "alert_fired"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, mid.ID, events[0].ID)
	})

	t.Run("half-open time window", func(t *testing.T) {
		events, err := led.QueryEvents(ctx, EventFilter{
			OrgID: orgID,
			From:  base,
			To:    base.Add(2 * time.Hour), // excludes late
		})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := led.QueryEvents(ctx, EventFilter{OrgID: orgID, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestCurrentDecisionOrdering(t *testing.T) {
	ctx := context.Background()
	led := NewMemory()
	orgID := id.NewOrgID()
	now := time.Now()

	event := newTestEvent(orgID, "call_completed", now)
	require.NoError(t, led.AppendEvent(ctx, event))

	_, err := led.CurrentDecision(ctx, orgID, event.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	first := newTestDecision(event, models.DecisionIncludeInDigest, now)
	second := newTestDecision(event, models.DecisionSuppress, now.Add(time.Minute))
	require.NoError(t, led.AppendDecision(ctx, first))
	require.NoError(t, led.AppendDecision(ctx, second))

	current, err := led.CurrentDecision(ctx, orgID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	// Same timestamp: the larger id wins, so the order is total.
	third := newTestDecision(event, models.DecisionEscalate, second.CreatedAt)
	require.NoError(t, led.AppendDecision(ctx, third))

	current, err = led.CurrentDecision(ctx, orgID, event.ID)
	require.NoError(t, err)
	if third.ID.String() > second.ID.String() {
		assert.Equal(t, third.ID, current.ID)
	} else {
		assert.Equal(t, second.ID, current.ID)
	}

	decisions, err := led.QueryDecisions(ctx, DecisionFilter{EventID: event.ID})
	require.NoError(t, err)
	assert.Len(t, decisions, 3)
	// Returned in (CreatedAt, ID) order.
	assert.Equal(t, first.ID, decisions[0].ID)
}
