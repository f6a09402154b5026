// Package evaluators holds the per-type policy evaluation logic. Evaluators
// are pure functions of (event, config) wherever possible, with no I/O, so
// the rules stay centralized and testable. The two exceptions
// are recurring suppression, which consults the recurrence index, and
// custom rules, which dispatch to registered strategies under a timeout.
package evaluators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"callwatch/internal/attention/models"
	"callwatch/internal/attention/recurrence"
	"callwatch/internal/policy"
)

// Result is a policy match: the verdict, a human-readable reason, and the
// evaluator's confidence. A nil *Result means no match.
type Result struct {
	Kind       models.DecisionKind
	Reason     string
	Confidence float64
}

// QuietHours matches events whose occurred_at hour falls inside the
// configured window. Wraparound windows (22 to 6) span midnight. Callers
// depend on the reason mentioning "quiet hours".
func QuietHours(event *models.AttentionEvent, cfg *policy.QuietHoursConfig) *Result {
	loc := time.UTC
	if cfg.Timezone != "" {
		// Validated at parse time; a failure here means the tz database
		// changed underneath us, in which case UTC is the sane fallback.
		if parsed, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = parsed
		}
	}
	hour := event.OccurredAt.In(loc).Hour()
	if !hourInWindow(hour, cfg.StartHour, cfg.EndHour) {
		return nil
	}

	kind := models.DecisionIncludeInDigest
	if cfg.HardMute {
		kind = models.DecisionSuppress
	}
	return &Result{
		Kind:       kind,
		Reason:     fmt.Sprintf("occurred during quiet hours (%02d:00-%02d:00)", cfg.StartHour, cfg.EndHour),
		Confidence: 1.0,
	}
}

// hourInWindow treats [start, end) as a half-open window on a 24-hour
// clock. start == end covers nothing; start 0 / end 24 covers everything.
func hourInWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Wraparound: 22 to 6 means hour >= 22 or hour < 6.
	return hour >= start || hour < end
}

// Threshold escalates events whose payload severity meets the configured
// minimum. Events without a numeric severity never match.
func Threshold(event *models.AttentionEvent, cfg *policy.ThresholdConfig) *Result {
	severity, ok := numericField(event.Payload, "severity")
	if !ok || severity < cfg.SeverityMinimum {
		return nil
	}
	return &Result{
		Kind:       models.DecisionEscalate,
		Reason:     fmt.Sprintf("severity %g met escalation threshold %g", severity, cfg.SeverityMinimum),
		Confidence: 1.0,
	}
}

// Recurring suppresses an event when one with the same org, event type, and
// source was observed within the window. The index's atomic check-and-mark
// is the consistency guarantee: concurrent emits for one source serialize
// there instead of racing on a read-then-write.
func Recurring(ctx context.Context, index recurrence.Index, event *models.AttentionEvent, cfg *policy.RecurringConfig) (*Result, error) {
	key := recurrence.Key(event.OrgID, event.EventType, event.SourceID)
	seen, err := index.CheckAndMark(ctx, key, cfg.Window())
	if err != nil {
		return nil, fmt.Errorf("recurrence lookup: %w", err)
	}
	if !seen {
		return nil, nil
	}
	return &Result{
		Kind:       models.DecisionSuppress,
		Reason:     fmt.Sprintf("recurrence of %s from %s within %ds", event.EventType, event.SourceID, cfg.WindowSeconds),
		Confidence: 1.0,
	}, nil
}

// Keyword escalates events containing any configured keyword in any of the
// configured payload text fields. Matching is case-insensitive substring.
func Keyword(event *models.AttentionEvent, cfg *policy.KeywordConfig) *Result {
	for _, field := range cfg.Fields {
		text, ok := textField(event.Payload, field)
		if !ok {
			continue
		}
		lowered := strings.ToLower(text)
		for _, keyword := range cfg.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return &Result{
					Kind:       models.DecisionEscalate,
					Reason:     fmt.Sprintf("keyword %q found in payload field %q", keyword, field),
					Confidence: 1.0,
				}
			}
		}
	}
	return nil
}

// numericField extracts a numeric payload value. JSON decoding yields
// float64; direct in-process callers may pass int or float.
func numericField(payload map[string]any, field string) (float64, bool) {
	switch v := payload[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func textField(payload map[string]any, field string) (string, bool) {
	s, ok := payload[field].(string)
	return s, ok
}
