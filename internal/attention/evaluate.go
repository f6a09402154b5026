package attention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callwatch/internal/attention/evaluators"
	"callwatch/internal/attention/models"
	"callwatch/internal/policy"
	id "callwatch/pkg/domain"
)

// defaultReason is the contract reason for events no enabled policy matched.
const defaultReason = "no matching policy"

// decisionDraft is the outcome of policy evaluation before it becomes a
// persisted decision.
type decisionDraft struct {
	kind       models.DecisionKind
	reason     string
	policyID   *id.PolicyID
	confidence float64
}

func defaultDraft() decisionDraft {
	return decisionDraft{
		kind:       models.DecisionIncludeInDigest,
		reason:     defaultReason,
		confidence: 1.0,
	}
}

// evaluatePolicies runs enabled policies in (priority, id) order and returns
// the first match, falling back to the default decision. It never fails:
// policy loading errors and evaluator errors are logged and recovered, since
// ingestion must not be blocked by a broken policy.
func (s *Service) evaluatePolicies(ctx context.Context, event *models.AttentionEvent) decisionDraft {
	policies, err := s.policies.ListEnabled(ctx, event.OrgID)
	if err != nil {
		s.logger.ErrorContext(ctx, "policy load failed, using default decision",
			"org_id", event.OrgID,
			"event_id", event.ID,
			"error", err,
		)
		draft := defaultDraft()
		draft.reason = "policy evaluation error: policies unavailable"
		return draft
	}

	for _, pol := range policies {
		start := time.Now()
		result, err := s.runEvaluator(ctx, pol, event)
		s.metrics.ObserveEvaluator(string(pol.Type), time.Since(start))
		if err != nil {
			s.metrics.IncrementEvaluationError(string(pol.Type))
			s.logger.ErrorContext(ctx, "policy evaluation error",
				"org_id", event.OrgID,
				"event_id", event.ID,
				"policy_id", pol.ID,
				"policy_type", pol.Type,
				"error", err,
			)
			// A timed-out custom evaluator is a non-match: evaluation
			// proceeds to the next policy. Anything else means the policy
			// itself is broken, and the event takes the default decision.
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			draft := defaultDraft()
			draft.reason = fmt.Sprintf("policy evaluation error: policy %s (%s) failed", pol.ID, pol.Type)
			return draft
		}
		if result == nil {
			continue
		}
		policyID := pol.ID
		return decisionDraft{
			kind:       result.Kind,
			reason:     result.Reason,
			policyID:   &policyID,
			confidence: result.Confidence,
		}
	}
	return defaultDraft()
}

// runEvaluator dispatches on the policy type. A panicking evaluator is
// recovered into an error so ingestion survives arbitrary rule bugs.
func (s *Service) runEvaluator(ctx context.Context, pol *policy.Policy, event *models.AttentionEvent) (result *evaluators.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()

	switch pol.Type {
	case policy.TypeQuietHours:
		return evaluators.QuietHours(event, pol.Config.QuietHours), nil
	case policy.TypeThreshold:
		return evaluators.Threshold(event, pol.Config.Threshold), nil
	case policy.TypeRecurring:
		return evaluators.Recurring(ctx, s.recurrence, event, pol.Config.Recurring)
	case policy.TypeKeywordEscalate:
		return evaluators.Keyword(event, pol.Config.Keyword), nil
	case policy.TypeCustom:
		return s.custom.Evaluate(ctx, event, pol.Config.Custom)
	default:
		return nil, fmt.Errorf("no evaluator for policy type %q", pol.Type)
	}
}
