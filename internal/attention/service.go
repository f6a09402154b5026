// Package attention implements the decision engine: event ingestion, policy
// evaluation, and human overrides. The engine is request-scoped: each call
// runs to completion against shared, thread-safe stores, so calls for any
// mix of organizations can proceed fully concurrently.
package attention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callwatch/internal/attention/evaluators"
	"callwatch/internal/attention/metrics"
	"callwatch/internal/attention/models"
	"callwatch/internal/attention/recurrence"
	"callwatch/internal/audit"
	"callwatch/internal/ledger"
	"callwatch/internal/policy"
	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
	"callwatch/pkg/platform/sentinel"
	"callwatch/pkg/requestcontext"
)

// Service orchestrates the ingestion and override paths.
type Service struct {
	ledger     ledger.Ledger
	policies   policy.Store
	recurrence recurrence.Index
	custom     *evaluators.Registry
	audit      *audit.Service
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithRecurrenceIndex swaps the recurrence index (defaults to in-memory).
func WithRecurrenceIndex(index recurrence.Index) Option {
	return func(s *Service) {
		if index != nil {
			s.recurrence = index
		}
	}
}

// WithCustomRegistry installs the custom-rule evaluator registry.
func WithCustomRegistry(registry *evaluators.Registry) Option {
	return func(s *Service) {
		if registry != nil {
			s.custom = registry
		}
	}
}

// WithAudit wires the audit sink used by HumanOverride.
func WithAudit(sink *audit.Service) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithMetrics wires Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New constructs the service. The ledger, policy store, and logger are
// required; everything else has a working default.
func New(led ledger.Ledger, policies policy.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	s := &Service{
		ledger:     led,
		policies:   policies,
		recurrence: recurrence.NewMemory(),
		custom:     evaluators.NewRegistry(evaluators.DefaultCustomTimeout),
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// EmitEventRequest carries everything a caller knows about a new event.
type EmitEventRequest struct {
	OrgID       id.OrgID
	EventType   string
	SourceTable string
	SourceID    string
	OccurredAt  time.Time
	Payload     map[string]any
	InputRefs   []models.InputRef
}

// EmitEvent validates and records an event, then synchronously evaluates
// policies and records the resulting decision. A broken policy never blocks
// ingestion: evaluator failures collapse into the default decision. Ledger
// failures propagate, since an event that cannot be durably recorded must not be
// silently dropped.
func (s *Service) EmitEvent(ctx context.Context, req EmitEventRequest) (id.EventID, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)

	event := &models.AttentionEvent{
		ID:          id.NewEventID(),
		OrgID:       req.OrgID,
		EventType:   req.EventType,
		SourceTable: req.SourceTable,
		SourceID:    req.SourceID,
		OccurredAt:  req.OccurredAt,
		Payload:     models.ClonePayload(req.Payload),
		InputRefs:   models.CloneRefs(req.InputRefs),
		CreatedAt:   now,
	}
	if err := event.Validate(); err != nil {
		return id.EventID{}, err
	}

	if err := s.ledger.AppendEvent(ctx, event); err != nil {
		return id.EventID{}, translateStorage("record event", err)
	}
	s.metrics.IncrementEmitted(event.EventType)

	draft := s.evaluatePolicies(ctx, event)
	decision := &models.AttentionDecision{
		ID:         id.NewDecisionID(),
		EventID:    event.ID,
		OrgID:      event.OrgID,
		Kind:       draft.kind,
		Reason:     draft.reason,
		PolicyID:   draft.policyID,
		Confidence: draft.confidence,
		Producer:   id.SystemActor(),
		InputRefs:  models.CloneRefs(event.InputRefs),
		CreatedAt:  now,
	}
	if err := s.ledger.AppendDecision(ctx, decision); err != nil {
		return id.EventID{}, translateStorage("record decision", err)
	}
	s.metrics.IncrementOutcome(decision.Kind.String(), string(decision.Producer.Kind))
	s.metrics.ObserveEmit(time.Since(start))

	s.logger.InfoContext(ctx, "event evaluated",
		"request_id", requestcontext.RequestID(ctx),
		"org_id", event.OrgID,
		"event_id", event.ID,
		"event_type", event.EventType,
		"decision", decision.Kind,
		"policy_id", policyIDField(decision.PolicyID),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return event.ID, nil
}

// OverrideRequest carries a human correction for an event's decision.
type OverrideRequest struct {
	OrgID        id.OrgID
	EventID      id.EventID
	Kind         models.DecisionKind
	Reason       string
	ActingUserID id.UserID
}

// HumanOverride appends a new human-produced decision for the event and
// records an audit entry with the superseded decision. History is never
// touched: the prior decision stays queryable.
func (s *Service) HumanOverride(ctx context.Context, req OverrideRequest) (id.DecisionID, error) {
	if !req.Kind.IsValid() {
		return id.DecisionID{}, dErrors.New(dErrors.CodeInvalidInput, "unknown decision kind")
	}
	if req.Reason == "" {
		return id.DecisionID{}, dErrors.New(dErrors.CodeInvalidInput, "override reason is required")
	}
	actor, err := id.HumanActor(req.ActingUserID)
	if err != nil {
		return id.DecisionID{}, err
	}

	event, err := s.ledger.GetEvent(ctx, req.OrgID, req.EventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.DecisionID{}, dErrors.New(dErrors.CodeNotFound, "event not found for organization")
		}
		return id.DecisionID{}, translateStorage("load event", err)
	}

	prior, err := s.ledger.CurrentDecision(ctx, req.OrgID, req.EventID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return id.DecisionID{}, translateStorage("load current decision", err)
	}

	refs := event.InputRefs
	if prior != nil {
		refs = prior.InputRefs
	}
	decision := &models.AttentionDecision{
		ID:         id.NewDecisionID(),
		EventID:    event.ID,
		OrgID:      event.OrgID,
		Kind:       req.Kind,
		Reason:     req.Reason,
		PolicyID:   nil,
		Confidence: 1.0,
		Producer:   actor,
		InputRefs:  models.CloneRefs(refs),
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := decision.Validate(); err != nil {
		return id.DecisionID{}, err
	}
	if err := s.ledger.AppendDecision(ctx, decision); err != nil {
		return id.DecisionID{}, translateStorage("record override", err)
	}
	s.metrics.IncrementOutcome(decision.Kind.String(), string(decision.Producer.Kind))

	s.recordOverrideAudit(ctx, event, prior, decision)

	s.logger.InfoContext(ctx, "decision overridden",
		"request_id", requestcontext.RequestID(ctx),
		"org_id", event.OrgID,
		"event_id", event.ID,
		"decision_id", decision.ID,
		"decision", decision.Kind,
		"acting_user_id", req.ActingUserID,
	)
	return decision.ID, nil
}

// recordOverrideAudit writes the before/after trail. The override itself is
// already durable; a sink outage is logged rather than failing the caller.
func (s *Service) recordOverrideAudit(ctx context.Context, event *models.AttentionEvent, prior, next *models.AttentionDecision) {
	if s.audit == nil {
		return
	}
	var before json.RawMessage
	if prior != nil {
		before, _ = json.Marshal(prior)
	}
	after, _ := json.Marshal(next)
	entry := audit.Entry{
		ResourceType: "attention_event",
		ResourceID:   event.ID.String(),
		Action:       audit.ActionDecisionOverridden,
		Actor:        next.Producer.String(),
		Before:       before,
		After:        after,
		CreatedAt:    next.CreatedAt,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit sink append failed",
			"event_id", event.ID,
			"decision_id", next.ID,
			"error", err,
		)
	}
}

// ListFilter narrows ListEvents results.
type ListFilter struct {
	Kind  models.DecisionKind // filter by current decision kind
	From  time.Time
	To    time.Time
	Limit int
}

// EventWithDecision pairs an event with its current decision.
type EventWithDecision struct {
	Event    *models.AttentionEvent
	Decision *models.AttentionDecision
}

// ListEvents returns events for the organization with their current
// decisions, optionally filtered by decision kind and occurrence window.
func (s *Service) ListEvents(ctx context.Context, orgID id.OrgID, filter ListFilter) ([]EventWithDecision, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "organization id is required")
	}
	events, err := s.ledger.QueryEvents(ctx, ledger.EventFilter{
		OrgID: orgID,
		From:  filter.From,
		To:    filter.To,
	})
	if err != nil {
		return nil, translateStorage("query events", err)
	}

	out := make([]EventWithDecision, 0, len(events))
	for _, event := range events {
		current, err := s.ledger.CurrentDecision(ctx, orgID, event.ID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, translateStorage("load current decision", err)
		}
		if filter.Kind != "" && (current == nil || current.Kind != filter.Kind) {
			continue
		}
		out = append(out, EventWithDecision{Event: event, Decision: current})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// translateStorage wraps ledger failures into coded domain errors.
func translateStorage(op string, err error) error {
	if errors.Is(err, sentinel.ErrAppendOnly) {
		return dErrors.Wrap(dErrors.CodeAppendOnly, op+" rejected by append-only ledger", err)
	}
	return dErrors.Wrap(dErrors.CodeInternal, op+" failed", err)
}

func policyIDField(policyID *id.PolicyID) string {
	if policyID == nil {
		return ""
	}
	return policyID.String()
}
