package handler

import (
	"strconv"
	"time"

	"callwatch/internal/attention"
	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
)

// EmitEventRequest is the wire shape for POST /organizations/{orgID}/events.
type EmitEventRequest struct {
	EventType   string            `json:"event_type"`
	SourceTable string            `json:"source_table"`
	SourceID    string            `json:"source_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Payload     map[string]any    `json:"payload,omitempty"`
	InputRefs   []inputRefPayload `json:"input_refs"`
}

type inputRefPayload struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// ToDomain builds the service request, leaving field validation to the
// domain model.
func (r EmitEventRequest) ToDomain(orgID id.OrgID) attention.EmitEventRequest {
	refs := make([]models.InputRef, 0, len(r.InputRefs))
	for _, ref := range r.InputRefs {
		refs = append(refs, models.InputRef{Table: ref.Table, ID: ref.ID})
	}
	return attention.EmitEventRequest{
		OrgID:       orgID,
		EventType:   r.EventType,
		SourceTable: r.SourceTable,
		SourceID:    r.SourceID,
		OccurredAt:  r.OccurredAt,
		Payload:     r.Payload,
		InputRefs:   refs,
	}
}

// OverrideRequest is the wire shape for
// POST /organizations/{orgID}/events/{eventID}/overrides.
type OverrideRequest struct {
	Decision     string `json:"decision"`
	Reason       string `json:"reason"`
	ActingUserID string `json:"acting_user_id"`
}

// ToDomain parses the wire fields into a typed override request. When the
// body omits acting_user_id, the actor the host injected into the request
// context is used instead.
func (r OverrideRequest) ToDomain(orgID id.OrgID, eventID id.EventID, ctxActor id.UserID) (attention.OverrideRequest, error) {
	kind, err := models.ParseDecisionKind(r.Decision)
	if err != nil {
		return attention.OverrideRequest{}, err
	}
	userID := ctxActor
	if r.ActingUserID != "" {
		userID, err = id.ParseUserID(r.ActingUserID)
		if err != nil {
			return attention.OverrideRequest{}, err
		}
	}
	if userID.IsNil() {
		return attention.OverrideRequest{}, dErrors.New(dErrors.CodeInvalidInput, "acting user is required")
	}
	return attention.OverrideRequest{
		OrgID:        orgID,
		EventID:      eventID,
		Kind:         kind,
		Reason:       r.Reason,
		ActingUserID: userID,
	}, nil
}

// parseListFilter reads the optional query parameters for event listing.
func parseListFilter(decision, from, to, limit string) (attention.ListFilter, error) {
	var filter attention.ListFilter
	if decision != "" {
		kind, err := models.ParseDecisionKind(decision)
		if err != nil {
			return filter, err
		}
		filter.Kind = kind
	}
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339")
		}
		filter.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339")
		}
		filter.To = t
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer")
		}
		filter.Limit = n
	}
	return filter, nil
}
