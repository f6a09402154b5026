// Package audit writes override trail entries to the externally-owned audit
// log. The engine is a producer only; it does not own the log's schema or
// retention.
package audit

import (
	"encoding/json"
	"time"
)

// Entry is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Entry struct {
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Action       string          `json:"action"`
	Actor        string          `json:"actor"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Actions recorded by the engine.
const (
	ActionDecisionOverridden = "attention_decision_overridden"
)
