// Package domain holds shared domain primitives: typed identifiers and the
// actor value used on decision provenance.
//
// IDs are distinct uuid wrapper types so an OrgID can never be passed where
// an EventID is expected. Construct them via the Parse helpers at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "callwatch/pkg/domain-errors"
)

type (
	// OrgID identifies an organization. Every record in the engine is scoped
	// to exactly one organization.
	OrgID uuid.UUID

	// EventID identifies an attention event.
	EventID uuid.UUID

	// DecisionID identifies an attention decision.
	DecisionID uuid.UUID

	// PolicyID identifies an attention policy.
	PolicyID uuid.UUID

	// DigestID identifies a digest record.
	DigestID uuid.UUID

	// UserID identifies the human actor behind an override.
	UserID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// ParseOrgID validates and returns an OrgID from external input.
func ParseOrgID(s string) (OrgID, error) {
	u, err := parseUUID("organization", s)
	return OrgID(u), err
}

// ParseEventID validates and returns an EventID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID("event", s)
	return EventID(u), err
}

// ParseDecisionID validates and returns a DecisionID from external input.
func ParseDecisionID(s string) (DecisionID, error) {
	u, err := parseUUID("decision", s)
	return DecisionID(u), err
}

// ParseDigestID validates and returns a DigestID from external input.
func ParseDigestID(s string) (DigestID, error) {
	u, err := parseUUID("digest", s)
	return DigestID(u), err
}

// ParseUserID validates and returns a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user", s)
	return UserID(u), err
}

func (id OrgID) String() string      { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }
func (id DecisionID) String() string { return uuid.UUID(id).String() }
func (id PolicyID) String() string   { return uuid.UUID(id).String() }
func (id DigestID) String() string   { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }

func (id OrgID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DecisionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DigestID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// NewOrgID returns a fresh random OrgID.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// NewEventID returns a fresh random EventID.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewDecisionID returns a fresh random DecisionID.
func NewDecisionID() DecisionID { return DecisionID(uuid.New()) }

// NewPolicyID returns a fresh random PolicyID.
func NewPolicyID() PolicyID { return PolicyID(uuid.New()) }

// NewDigestID returns a fresh random DigestID.
func NewDigestID() DigestID { return DigestID(uuid.New()) }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }
