//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
	"callwatch/pkg/platform/sentinel"
	"callwatch/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite

	ctx    context.Context
	pg     *containers.PostgresContainer
	ledger *PostgresLedger
}

func TestPostgresLedgerSuite(t *testing.T) {
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(ApplySchema(s.ctx, s.pg.DB))
	s.ledger = NewPostgres(s.pg.DB)
}

func (s *PostgresLedgerSuite) seedEvent(orgID id.OrgID) *models.AttentionEvent {
	now := time.Now().UTC().Truncate(time.Microsecond)
	event := &models.AttentionEvent{
		ID:          id.NewEventID(),
		OrgID:       orgID,
		EventType:   "call_completed",
		SourceTable: "calls",
		SourceID:    "call-1",
		OccurredAt:  now,
		Payload:     map[string]any{"severity": 4.0},
		InputRefs:   []models.InputRef{{Table: "calls", ID: "call-1"}},
		CreatedAt:   now,
	}
	s.Require().NoError(s.ledger.AppendEvent(s.ctx, event))
	return event
}

func (s *PostgresLedgerSuite) TestEventRoundTrip() {
	orgID := id.NewOrgID()
	event := s.seedEvent(orgID)

	stored, err := s.ledger.GetEvent(s.ctx, orgID, event.ID)
	s.Require().NoError(err)
	s.Equal(event.EventType, stored.EventType)
	s.Equal(event.Payload, stored.Payload)
	s.Equal(event.InputRefs, stored.InputRefs)
	s.True(event.OccurredAt.Equal(stored.OccurredAt))

	_, err = s.ledger.GetEvent(s.ctx, id.NewOrgID(), event.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestDuplicateAppendRejected() {
	event := s.seedEvent(id.NewOrgID())
	err := s.ledger.AppendEvent(s.ctx, event)
	s.ErrorIs(err, sentinel.ErrAppendOnly)
}

func (s *PostgresLedgerSuite) TestTriggerRejectsMutation() {
	event := s.seedEvent(id.NewOrgID())

	_, err := s.pg.DB.ExecContext(s.ctx,
		`UPDATE attention_events SET event_type = 'tampered' WHERE id = $1`, event.ID.String())
	s.Require().Error(err, "append-only trigger must reject updates")
	s.Contains(err.Error(), "append-only violation")

	_, err = s.pg.DB.ExecContext(s.ctx,
		`DELETE FROM attention_events WHERE id = $1`, event.ID.String())
	s.Require().Error(err, "append-only trigger must reject deletes")
}

func (s *PostgresLedgerSuite) TestDecisionHistoryAndCurrent() {
	orgID := id.NewOrgID()
	event := s.seedEvent(orgID)
	base := time.Now().UTC().Truncate(time.Microsecond)

	policyID := id.NewPolicyID()
	first := &models.AttentionDecision{
		ID:         id.NewDecisionID(),
		EventID:    event.ID,
		OrgID:      orgID,
		Kind:       models.DecisionEscalate,
		Reason:     "severity 4 met escalation threshold 4",
		PolicyID:   &policyID,
		Confidence: 1.0,
		Producer:   id.SystemActor(),
		InputRefs:  models.CloneRefs(event.InputRefs),
		CreatedAt:  base,
	}
	s.Require().NoError(s.ledger.AppendDecision(s.ctx, first))

	actor, err := id.HumanActor(id.NewUserID())
	s.Require().NoError(err)
	override := &models.AttentionDecision{
		ID:         id.NewDecisionID(),
		EventID:    event.ID,
		OrgID:      orgID,
		Kind:       models.DecisionSuppress,
		Reason:     "known noisy alert",
		Confidence: 1.0,
		Producer:   actor,
		InputRefs:  models.CloneRefs(event.InputRefs),
		CreatedAt:  base.Add(time.Minute),
	}
	s.Require().NoError(s.ledger.AppendDecision(s.ctx, override))

	current, err := s.ledger.CurrentDecision(s.ctx, orgID, event.ID)
	s.Require().NoError(err)
	s.Equal(override.ID, current.ID)
	s.Equal(id.ProducedByHuman, current.Producer.Kind)
	s.Equal(actor.UserID, current.Producer.UserID)

	history, err := s.ledger.QueryDecisions(s.ctx, DecisionFilter{EventID: event.ID})
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(first.ID, history[0].ID)
	s.Require().NotNil(history[0].PolicyID)
	s.Equal(policyID, *history[0].PolicyID)
	s.Nil(history[1].PolicyID)
}

func (s *PostgresLedgerSuite) TestDigestRoundTrip() {
	orgID := id.NewOrgID()
	now := time.Now().UTC().Truncate(time.Microsecond)
	digest := &models.Digest{
		ID:          id.NewDigestID(),
		OrgID:       orgID,
		Type:        models.DigestScheduled,
		PeriodStart: now.Add(-24 * time.Hour),
		PeriodEnd:   now,
		TotalEvents: 3,
		SummaryText: "3 event(s)",
		GeneratedBy: "digest-scheduler",
		CreatedAt:   now,
	}
	s.Require().NoError(s.ledger.AppendDigest(s.ctx, digest))
	s.ErrorIs(s.ledger.AppendDigest(s.ctx, digest), sentinel.ErrAppendOnly)

	digests, err := s.ledger.QueryDigests(s.ctx, DigestFilter{OrgID: orgID})
	s.Require().NoError(err)
	s.Require().Len(digests, 1)
	s.Equal(3, digests[0].TotalEvents)
	s.Equal(models.DigestScheduled, digests[0].Type)
}
