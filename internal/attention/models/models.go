// Package models defines the three append-only record families the engine
// persists: attention events, attention decisions, and digests. Records are
// immutable once written; corrections append new decisions instead of
// editing history.
package models

import (
	"time"

	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
)

// InputRef points at an originating record in the host application
// (a call row, an alert row, a quality-check row). Decisions inherit the
// refs of the event or decision they were derived from, so every verdict
// can be traced back to source data.
type InputRef struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// DecisionKind is the closed set of verdicts the engine can record.
type DecisionKind string

const (
	DecisionSuppress        DecisionKind = "suppress"
	DecisionEscalate        DecisionKind = "escalate"
	DecisionIncludeInDigest DecisionKind = "include_in_digest"
)

var validDecisionKinds = map[DecisionKind]bool{
	DecisionSuppress:        true,
	DecisionEscalate:        true,
	DecisionIncludeInDigest: true,
}

// ParseDecisionKind constructs a DecisionKind from external input.
func ParseDecisionKind(s string) (DecisionKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "decision cannot be empty")
	}
	k := DecisionKind(s)
	if !validDecisionKinds[k] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown decision kind: "+s)
	}
	return k, nil
}

// IsValid reports whether the kind is one of the closed variants.
func (k DecisionKind) IsValid() bool { return validDecisionKinds[k] }

func (k DecisionKind) String() string { return string(k) }

// AttentionEvent is an immutable fact submitted for policy evaluation.
// Many decisions may reference one event over time.
type AttentionEvent struct {
	ID          id.EventID
	OrgID       id.OrgID
	EventType   string
	SourceTable string
	SourceID    string
	OccurredAt  time.Time
	Payload     map[string]any
	InputRefs   []InputRef
	CreatedAt   time.Time
}

// Validate enforces the required-field contract before any ledger write.
func (e *AttentionEvent) Validate() error {
	switch {
	case e.OrgID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "organization id is required")
	case e.EventType == "":
		return dErrors.New(dErrors.CodeInvalidInput, "event type is required")
	case len(e.InputRefs) == 0:
		return dErrors.New(dErrors.CodeInvalidInput, "at least one input ref is required")
	case e.OccurredAt.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "occurred_at is required")
	}
	for _, ref := range e.InputRefs {
		if ref.Table == "" || ref.ID == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "input refs require table and id")
		}
	}
	return nil
}

// AttentionDecision is an immutable, provenance-carrying verdict about an
// event. The current decision for an event is the one with the maximum
// CreatedAt, ties broken by maximum ID.
type AttentionDecision struct {
	ID         id.DecisionID
	EventID    id.EventID
	OrgID      id.OrgID
	Kind       DecisionKind
	Reason     string
	PolicyID   *id.PolicyID // nil for human overrides and the default fallback
	Confidence float64
	Producer   id.Actor
	InputRefs  []InputRef
	CreatedAt  time.Time
}

// Validate enforces the decision invariants: a known kind, at least one
// input ref, confidence in [0,1], and a coherent producer.
func (d *AttentionDecision) Validate() error {
	switch {
	case d.EventID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "decision requires an event id")
	case d.OrgID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "decision requires an organization id")
	case !d.Kind.IsValid():
		return dErrors.New(dErrors.CodeInvalidInput, "unknown decision kind")
	case len(d.InputRefs) == 0:
		return dErrors.New(dErrors.CodeInvalidInput, "decision requires at least one input ref")
	case d.Confidence < 0 || d.Confidence > 1:
		return dErrors.New(dErrors.CodeInvalidInput, "confidence must be within [0, 1]")
	}
	return d.Producer.Validate()
}

// After orders decisions for current-decision selection: later CreatedAt
// wins, ties broken by lexically larger ID so the order is total.
func (d *AttentionDecision) After(other *AttentionDecision) bool {
	if !d.CreatedAt.Equal(other.CreatedAt) {
		return d.CreatedAt.After(other.CreatedAt)
	}
	return d.ID.String() > other.ID.String()
}

// DigestType distinguishes scheduler-produced digests from ad hoc ones.
type DigestType string

const (
	DigestScheduled DigestType = "scheduled"
	DigestOnDemand  DigestType = "on_demand"
)

// ParseDigestType constructs a DigestType from external input.
func ParseDigestType(s string) (DigestType, error) {
	switch DigestType(s) {
	case DigestScheduled:
		return DigestScheduled, nil
	case DigestOnDemand:
		return DigestOnDemand, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown digest type: "+s)
	}
}

// Digest is an immutable summary of a time window. Re-running a window
// appends another row; rows are never replaced.
type Digest struct {
	ID          id.DigestID
	OrgID       id.OrgID
	Type        DigestType
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalEvents int
	SummaryText string
	GeneratedBy string
	CreatedAt   time.Time
}

// Validate enforces the digest write contract.
func (g *Digest) Validate() error {
	switch {
	case g.OrgID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "digest requires an organization id")
	case g.Type != DigestScheduled && g.Type != DigestOnDemand:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown digest type")
	case g.PeriodStart.IsZero() || g.PeriodEnd.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "digest requires a period")
	case !g.PeriodEnd.After(g.PeriodStart):
		return dErrors.New(dErrors.CodeInvalidInput, "digest period end must follow period start")
	}
	return nil
}

// CloneRefs copies an input ref slice so stored records never share backing
// arrays with caller-owned slices.
func CloneRefs(refs []InputRef) []InputRef {
	out := make([]InputRef, len(refs))
	copy(out, refs)
	return out
}

// ClonePayload copies a payload map one level deep. Payload values are
// treated as immutable JSON scalars/containers.
func ClonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
