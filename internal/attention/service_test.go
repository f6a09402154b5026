package attention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"callwatch/internal/attention/evaluators"
	"callwatch/internal/attention/models"
	"callwatch/internal/audit"
	"callwatch/internal/ledger"
	"callwatch/internal/policy"
	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
	"callwatch/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	ctx      context.Context
	ledger   *ledger.MemoryLedger
	policies *policy.MemoryStore
	auditLog *audit.MemoryStore
	registry *evaluators.Registry
	service  *Service
	orgID    id.OrgID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledger.NewMemory()
	s.policies = policy.NewMemory()
	s.auditLog = audit.NewMemoryStore()
	s.registry = evaluators.NewRegistry(50 * time.Millisecond)
	s.orgID = id.NewOrgID()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := New(s.ledger, s.policies, logger,
		WithCustomRegistry(s.registry),
		WithAudit(audit.NewService(s.auditLog)),
	)
	s.Require().NoError(err)
	s.service = service
}

func (s *ServiceSuite) emitRequest(eventType string, payload map[string]any) EmitEventRequest {
	return EmitEventRequest{
		OrgID:       s.orgID,
		EventType:   eventType,
		SourceTable: "calls",
		SourceID:    "call-1",
		OccurredAt:  time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Payload:     payload,
		InputRefs:   []models.InputRef{{Table: "calls", ID: "call-1"}},
	}
}

func (s *ServiceSuite) putPolicy(typ policy.Type, cfg policy.Config, priority int) *policy.Policy {
	p := &policy.Policy{
		ID:        id.NewPolicyID(),
		OrgID:     s.orgID,
		Name:      string(typ),
		Type:      typ,
		Config:    cfg,
		Priority:  priority,
		IsEnabled: true,
	}
	s.policies.Put(p)
	return p
}

func (s *ServiceSuite) currentDecision(eventID id.EventID) *models.AttentionDecision {
	decision, err := s.ledger.CurrentDecision(s.ctx, s.orgID, eventID)
	s.Require().NoError(err)
	return decision
}

func (s *ServiceSuite) TestEmitWithoutPoliciesRecordsDefaultDecision() {
	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_completed", map[string]any{"severity": 2.0}))
	s.Require().NoError(err)

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionIncludeInDigest, decision.Kind)
	s.Equal("no matching policy", decision.Reason)
	s.Equal(1.0, decision.Confidence)
	s.Equal(id.ProducedBySystem, decision.Producer.Kind)
	s.Nil(decision.PolicyID)
	s.NotEmpty(decision.InputRefs)
}

func (s *ServiceSuite) TestEmitValidation() {
	tests := []struct {
		name   string
		mutate func(*EmitEventRequest)
	}{
		{"missing org", func(r *EmitEventRequest) { r.OrgID = id.OrgID{} }},
		{"missing event type", func(r *EmitEventRequest) { r.EventType = "" }},
		{"missing input refs", func(r *EmitEventRequest) { r.InputRefs = nil }},
		{"missing occurred_at", func(r *EmitEventRequest) { r.OccurredAt = time.Time{} }},
		{"blank ref table", func(r *EmitEventRequest) { r.InputRefs = []models.InputRef{{ID: "x"}} }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := s.emitRequest("call_completed", nil)
			tt.mutate(&req)
			_, err := s.service.EmitEvent(s.ctx, req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

			events, decisions, _ := s.ledger.Counts()
			s.Zero(events, "rejected events must not reach the ledger")
			s.Zero(decisions)
		})
	}
}

func (s *ServiceSuite) TestQuietHoursHardMuteSuppresses() {
	pol := s.putPolicy(policy.TypeQuietHours, policy.Config{
		QuietHours: &policy.QuietHoursConfig{StartHour: 22, EndHour: 6, HardMute: true},
	}, 1)

	req := s.emitRequest("call_completed", nil)
	req.OccurredAt = time.Date(2026, 3, 10, 23, 15, 0, 0, time.UTC)
	eventID, err := s.service.EmitEvent(s.ctx, req)
	s.Require().NoError(err)

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionSuppress, decision.Kind)
	s.Contains(decision.Reason, "quiet hours")
	s.Require().NotNil(decision.PolicyID)
	s.Equal(pol.ID, *decision.PolicyID)
}

func (s *ServiceSuite) TestThresholdEscalates() {
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 4},
	}, 1)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 5.0}))
	s.Require().NoError(err)
	s.Equal(models.DecisionEscalate, s.currentDecision(eventID).Kind)

	below, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 3.0}))
	s.Require().NoError(err)
	s.Equal(models.DecisionIncludeInDigest, s.currentDecision(below).Kind)
}

func (s *ServiceSuite) TestRecurringSuppressesRepeats() {
	s.putPolicy(policy.TypeRecurring, policy.Config{
		Recurring: &policy.RecurringConfig{WindowSeconds: 3600},
	}, 1)

	first, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_failed", nil))
	s.Require().NoError(err)
	s.Equal(models.DecisionIncludeInDigest, s.currentDecision(first).Kind)

	second, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_failed", nil))
	s.Require().NoError(err)
	decision := s.currentDecision(second)
	s.Equal(models.DecisionSuppress, decision.Kind)
	s.Contains(decision.Reason, "recurrence")

	// A different source is a fresh series.
	other := s.emitRequest("call_failed", nil)
	other.SourceID = "call-2"
	other.InputRefs = []models.InputRef{{Table: "calls", ID: "call-2"}}
	third, err := s.service.EmitEvent(s.ctx, other)
	s.Require().NoError(err)
	s.Equal(models.DecisionIncludeInDigest, s.currentDecision(third).Kind)
}

func (s *ServiceSuite) TestKeywordEscalates() {
	s.putPolicy(policy.TypeKeywordEscalate, policy.Config{
		Keyword: &policy.KeywordConfig{Keywords: []string{"lawsuit"}, Fields: []string{"transcript_summary"}},
	}, 1)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_completed", map[string]any{
		"transcript_summary": "The customer threatened a Lawsuit over billing.",
	}))
	s.Require().NoError(err)

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionEscalate, decision.Kind)
	s.Contains(decision.Reason, "lawsuit")
}

func (s *ServiceSuite) TestLowerPriorityPolicyWins() {
	quiet := s.putPolicy(policy.TypeQuietHours, policy.Config{
		QuietHours: &policy.QuietHoursConfig{StartHour: 0, EndHour: 24},
	}, 1)
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 1},
	}, 2)

	// Both policies match; the priority-1 quiet hours verdict must win.
	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 9.0}))
	s.Require().NoError(err)

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionIncludeInDigest, decision.Kind)
	s.Require().NotNil(decision.PolicyID)
	s.Equal(quiet.ID, *decision.PolicyID)
}

func (s *ServiceSuite) TestNonMatchFallsThroughToNextPolicy() {
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 8},
	}, 1)
	keyword := s.putPolicy(policy.TypeKeywordEscalate, policy.Config{
		Keyword: &policy.KeywordConfig{Keywords: []string{"refund"}, Fields: []string{"notes"}},
	}, 2)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_completed", map[string]any{
		"severity": 2.0,
		"notes":    "customer asked for a refund",
	}))
	s.Require().NoError(err)

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionEscalate, decision.Kind)
	s.Require().NotNil(decision.PolicyID)
	s.Equal(keyword.ID, *decision.PolicyID)
}

func (s *ServiceSuite) TestBrokenPolicyYieldsDefaultDecision() {
	// A custom policy whose rule has no registered evaluator is broken, not
	// slow: the event takes the default decision with an error reason.
	s.putPolicy(policy.TypeCustom, policy.Config{
		Custom: &policy.CustomConfig{Rule: "unregistered"},
	}, 1)
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 1},
	}, 2)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 9.0}))
	s.Require().NoError(err, "a broken policy must not block ingestion")

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionIncludeInDigest, decision.Kind)
	s.Contains(decision.Reason, "policy evaluation error")
	s.Nil(decision.PolicyID)
}

func (s *ServiceSuite) TestTimedOutCustomRuleIsANonMatch() {
	s.registry.Register("slow", evaluators.CustomEvaluatorFunc(
		func(ctx context.Context, _ *models.AttentionEvent, _ *policy.CustomConfig) (*evaluators.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
	s.putPolicy(policy.TypeCustom, policy.Config{
		Custom: &policy.CustomConfig{Rule: "slow"},
	}, 1)
	threshold := s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 1},
	}, 2)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 9.0}))
	s.Require().NoError(err)

	// Evaluation proceeded past the timed-out rule to the threshold policy.
	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionEscalate, decision.Kind)
	s.Require().NotNil(decision.PolicyID)
	s.Equal(threshold.ID, *decision.PolicyID)
}

func (s *ServiceSuite) TestCustomRuleMatch() {
	s.registry.Register("vip_caller", evaluators.CustomEvaluatorFunc(
		func(_ context.Context, event *models.AttentionEvent, _ *policy.CustomConfig) (*evaluators.Result, error) {
			if event.Payload["caller_tier"] == "gold" {
				return &evaluators.Result{Kind: models.DecisionEscalate, Reason: "gold-tier caller", Confidence: 0.8}, nil
			}
			return nil, nil
		}))
	s.putPolicy(policy.TypeCustom, policy.Config{
		Custom: &policy.CustomConfig{Rule: "vip_caller"},
	}, 1)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_completed", map[string]any{"caller_tier": "gold"}))
	s.Require().NoError(err)

	decision := s.currentDecision(eventID)
	s.Equal(models.DecisionEscalate, decision.Kind)
	s.Equal(0.8, decision.Confidence)
}

func (s *ServiceSuite) TestHumanOverrideAppendsWithoutRewritingHistory() {
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 4},
	}, 1)

	ctx := requestcontext.WithTime(s.ctx, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	eventID, err := s.service.EmitEvent(ctx, s.emitRequest("alert_fired", map[string]any{"severity": 6.0}))
	s.Require().NoError(err)
	original := s.currentDecision(eventID)
	s.Equal(models.DecisionEscalate, original.Kind)

	userID := id.NewUserID()
	overrideCtx := requestcontext.WithTime(s.ctx, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	overrideID, err := s.service.HumanOverride(overrideCtx, OverrideRequest{
		OrgID:        s.orgID,
		EventID:      eventID,
		Kind:         models.DecisionSuppress,
		Reason:       "known noisy alert, fix scheduled",
		ActingUserID: userID,
	})
	s.Require().NoError(err)

	// Exactly one decision was added; the original is untouched.
	decisions, err := s.ledger.QueryDecisions(s.ctx, ledger.DecisionFilter{EventID: eventID})
	s.Require().NoError(err)
	s.Require().Len(decisions, 2)
	s.Equal(original.ID, decisions[0].ID)
	s.Equal(original.Kind, decisions[0].Kind)

	current := s.currentDecision(eventID)
	s.Equal(overrideID, current.ID)
	s.Equal(models.DecisionSuppress, current.Kind)
	s.Equal(id.ProducedByHuman, current.Producer.Kind)
	s.Equal(userID, current.Producer.UserID)
	s.Nil(current.PolicyID)
	s.Equal(1.0, current.Confidence)
	s.Equal(original.InputRefs, current.InputRefs, "overrides inherit the superseded decision's refs")

	// The override left an audit trail carrying the superseded decision.
	entries := s.auditLog.Entries()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionDecisionOverridden, entries[0].Action)
	s.Equal(eventID.String(), entries[0].ResourceID)
	s.NotEmpty(entries[0].Before)
	s.NotEmpty(entries[0].After)
}

func (s *ServiceSuite) TestOverrideValidation() {
	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("call_completed", nil))
	s.Require().NoError(err)
	userID := id.NewUserID()

	s.Run("unknown kind", func() {
		_, err := s.service.HumanOverride(s.ctx, OverrideRequest{
			OrgID: s.orgID, EventID: eventID, Kind: "defer", Reason: "x", ActingUserID: userID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing reason", func() {
		_, err := s.service.HumanOverride(s.ctx, OverrideRequest{
			OrgID: s.orgID, EventID: eventID, Kind: models.DecisionSuppress, ActingUserID: userID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing user", func() {
		_, err := s.service.HumanOverride(s.ctx, OverrideRequest{
			OrgID: s.orgID, EventID: eventID, Kind: models.DecisionSuppress, Reason: "x",
		})
		s.Require().Error(err)
	})

	s.Run("unknown event", func() {
		_, err := s.service.HumanOverride(s.ctx, OverrideRequest{
			OrgID: s.orgID, EventID: id.NewEventID(), Kind: models.DecisionSuppress, Reason: "x", ActingUserID: userID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("event from another organization", func() {
		_, err := s.service.HumanOverride(s.ctx, OverrideRequest{
			OrgID: id.NewOrgID(), EventID: eventID, Kind: models.DecisionSuppress, Reason: "x", ActingUserID: userID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestEveryDecisionCarriesInputRefs() {
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 1},
	}, 1)

	eventID, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 5.0}))
	s.Require().NoError(err)
	_, err = s.service.HumanOverride(s.ctx, OverrideRequest{
		OrgID: s.orgID, EventID: eventID, Kind: models.DecisionSuppress, Reason: "noise", ActingUserID: id.NewUserID(),
	})
	s.Require().NoError(err)

	decisions, err := s.ledger.QueryDecisions(s.ctx, ledger.DecisionFilter{OrgID: s.orgID})
	s.Require().NoError(err)
	s.Require().NotEmpty(decisions)
	for _, d := range decisions {
		s.NotEmpty(d.InputRefs)
	}
}

func (s *ServiceSuite) TestListEventsByCurrentDecision() {
	s.putPolicy(policy.TypeThreshold, policy.Config{
		Threshold: &policy.ThresholdConfig{SeverityMinimum: 4},
	}, 1)

	high, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 5.0}))
	s.Require().NoError(err)
	low, err := s.service.EmitEvent(s.ctx, s.emitRequest("alert_fired", map[string]any{"severity": 1.0}))
	s.Require().NoError(err)

	escalated, err := s.service.ListEvents(s.ctx, s.orgID, ListFilter{Kind: models.DecisionEscalate})
	s.Require().NoError(err)
	s.Require().Len(escalated, 1)
	s.Equal(high, escalated[0].Event.ID)

	all, err := s.service.ListEvents(s.ctx, s.orgID, ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	// Overriding moves the event between kind buckets.
	_, err = s.service.HumanOverride(s.ctx, OverrideRequest{
		OrgID: s.orgID, EventID: low, Kind: models.DecisionEscalate, Reason: "missed by threshold", ActingUserID: id.NewUserID(),
	})
	s.Require().NoError(err)

	escalated, err = s.service.ListEvents(s.ctx, s.orgID, ListFilter{Kind: models.DecisionEscalate})
	s.Require().NoError(err)
	s.Len(escalated, 2)
}
