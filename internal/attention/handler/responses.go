package handler

import (
	"time"

	"callwatch/internal/attention"
	"callwatch/internal/attention/models"
)

// EmitEventResponse returns the id of the recorded event.
type EmitEventResponse struct {
	EventID string `json:"event_id"`
}

// OverrideResponse returns the id of the appended decision.
type OverrideResponse struct {
	DecisionID string `json:"decision_id"`
}

// EventResponse is the wire shape of one event plus its current decision.
type EventResponse struct {
	Event    eventPayload     `json:"event"`
	Decision *decisionPayload `json:"current_decision,omitempty"`
}

type eventPayload struct {
	ID          string            `json:"id"`
	EventType   string            `json:"event_type"`
	SourceTable string            `json:"source_table"`
	SourceID    string            `json:"source_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Payload     map[string]any    `json:"payload,omitempty"`
	InputRefs   []inputRefPayload `json:"input_refs"`
	CreatedAt   time.Time         `json:"created_at"`
}

type decisionPayload struct {
	ID               string            `json:"id"`
	Decision         string            `json:"decision"`
	Reason           string            `json:"reason"`
	PolicyID         *string           `json:"policy_id"`
	Confidence       float64           `json:"confidence"`
	ProducedBy       string            `json:"produced_by"`
	ProducedByUserID *string           `json:"produced_by_user_id,omitempty"`
	ProducedByModel  *string           `json:"produced_by_model,omitempty"`
	InputRefs        []inputRefPayload `json:"input_refs"`
	CreatedAt        time.Time         `json:"created_at"`
}

// FromListing converts service results to the wire shape.
func FromListing(items []attention.EventWithDecision) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, item := range items {
		out = append(out, EventResponse{
			Event:    toEventPayload(item.Event),
			Decision: toDecisionPayload(item.Decision),
		})
	}
	return out
}

func toEventPayload(event *models.AttentionEvent) eventPayload {
	return eventPayload{
		ID:          event.ID.String(),
		EventType:   event.EventType,
		SourceTable: event.SourceTable,
		SourceID:    event.SourceID,
		OccurredAt:  event.OccurredAt,
		Payload:     event.Payload,
		InputRefs:   toRefPayloads(event.InputRefs),
		CreatedAt:   event.CreatedAt,
	}
}

func toDecisionPayload(decision *models.AttentionDecision) *decisionPayload {
	if decision == nil {
		return nil
	}
	p := &decisionPayload{
		ID:         decision.ID.String(),
		Decision:   decision.Kind.String(),
		Reason:     decision.Reason,
		Confidence: decision.Confidence,
		ProducedBy: string(decision.Producer.Kind),
		InputRefs:  toRefPayloads(decision.InputRefs),
		CreatedAt:  decision.CreatedAt,
	}
	if decision.PolicyID != nil {
		s := decision.PolicyID.String()
		p.PolicyID = &s
	}
	if !decision.Producer.UserID.IsNil() {
		s := decision.Producer.UserID.String()
		p.ProducedByUserID = &s
	}
	if decision.Producer.Model != "" {
		s := decision.Producer.Model
		p.ProducedByModel = &s
	}
	return p
}

func toRefPayloads(refs []models.InputRef) []inputRefPayload {
	out := make([]inputRefPayload, 0, len(refs))
	for _, ref := range refs {
		out = append(out, inputRefPayload{Table: ref.Table, ID: ref.ID})
	}
	return out
}
