// Package policy defines organization-scoped attention policies and the
// stores that load them. Policy CRUD is owned by the host application; the
// engine only reads enabled policies in priority order.
package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
)

// Type is the closed set of policy variants.
type Type string

const (
	TypeQuietHours      Type = "quiet_hours"
	TypeThreshold       Type = "threshold"
	TypeRecurring       Type = "recurring_suppress"
	TypeKeywordEscalate Type = "keyword_escalate"
	TypeCustom          Type = "custom"
)

var validTypes = map[Type]bool{
	TypeQuietHours:      true,
	TypeThreshold:       true,
	TypeRecurring:       true,
	TypeKeywordEscalate: true,
	TypeCustom:          true,
}

// ParseType constructs a policy Type from external input.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown policy type: "+s)
	}
	return t, nil
}

// Config is the closed sum over variant-specific policy configuration.
// Exactly one branch is non-nil, matching the policy's Type. Parsing
// validates once at load time so evaluators never see untyped JSON.
type Config struct {
	QuietHours *QuietHoursConfig
	Threshold  *ThresholdConfig
	Recurring  *RecurringConfig
	Keyword    *KeywordConfig
	Custom     *CustomConfig
}

// QuietHoursConfig matches events whose occurred_at hour falls inside a
// local-time window. Wraparound windows (22 to 6) are allowed.
type QuietHoursConfig struct {
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	HardMute  bool   `json:"hard_mute"`
	Timezone  string `json:"timezone,omitempty"`
}

func (c *QuietHoursConfig) validate() error {
	if c.StartHour < 0 || c.StartHour > 24 || c.EndHour < 0 || c.EndHour > 24 {
		return dErrors.New(dErrors.CodeInvalidInput, "quiet hours must be within 0-24")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown quiet hours timezone: "+c.Timezone)
		}
	}
	return nil
}

// ThresholdConfig escalates events whose payload severity meets a minimum.
type ThresholdConfig struct {
	SeverityMinimum float64 `json:"severity_minimum"`
}

func (c *ThresholdConfig) validate() error {
	if c.SeverityMinimum < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "severity minimum cannot be negative")
	}
	return nil
}

// RecurringConfig suppresses repeats of the same event_type/source within
// a rolling window.
type RecurringConfig struct {
	WindowSeconds int `json:"window_seconds"`
}

func (c *RecurringConfig) validate() error {
	if c.WindowSeconds <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "recurrence window must be positive")
	}
	return nil
}

// Window returns the configured suppression window as a duration.
func (c *RecurringConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// KeywordConfig escalates events whose text fields contain any configured
// keyword (case-insensitive substring).
type KeywordConfig struct {
	Keywords []string `json:"keywords"`
	Fields   []string `json:"fields"`
}

func (c *KeywordConfig) validate() error {
	if len(c.Keywords) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "keyword policy requires at least one keyword")
	}
	if len(c.Fields) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "keyword policy requires at least one payload field")
	}
	return nil
}

// CustomConfig carries an opaque, previously-validated rule expression
// interpreted by a registered custom evaluator strategy.
type CustomConfig struct {
	Rule   string          `json:"rule"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (c *CustomConfig) validate() error {
	if c.Rule == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "custom policy requires a rule name")
	}
	return nil
}

// ParseConfig decodes and validates variant config for the given type.
// Call at load/parse time; evaluation trusts the result.
func ParseConfig(t Type, raw json.RawMessage) (Config, error) {
	decode := func(v interface{ validate() error }) error {
		if len(raw) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "policy config is required")
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return dErrors.Wrap(dErrors.CodeInvalidInput, "malformed policy config", err)
		}
		return v.validate()
	}

	switch t {
	case TypeQuietHours:
		cfg := &QuietHoursConfig{}
		if err := decode(cfg); err != nil {
			return Config{}, err
		}
		return Config{QuietHours: cfg}, nil
	case TypeThreshold:
		cfg := &ThresholdConfig{}
		if err := decode(cfg); err != nil {
			return Config{}, err
		}
		return Config{Threshold: cfg}, nil
	case TypeRecurring:
		cfg := &RecurringConfig{}
		if err := decode(cfg); err != nil {
			return Config{}, err
		}
		return Config{Recurring: cfg}, nil
	case TypeKeywordEscalate:
		cfg := &KeywordConfig{}
		if err := decode(cfg); err != nil {
			return Config{}, err
		}
		return Config{Keyword: cfg}, nil
	case TypeCustom:
		cfg := &CustomConfig{}
		if err := decode(cfg); err != nil {
			return Config{}, err
		}
		return Config{Custom: cfg}, nil
	default:
		return Config{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown policy type: %s", t))
	}
}

// Policy is a mutable configuration record. Lower Priority evaluates first;
// equal priorities tie-break by ascending id so ordering is deterministic.
type Policy struct {
	ID        id.PolicyID
	OrgID     id.OrgID
	Name      string
	Type      Type
	Config    Config
	Priority  int
	IsEnabled bool
	CreatedBy id.UserID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SortByPriority orders policies by (priority asc, id asc) in place.
func SortByPriority(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority < policies[j].Priority
		}
		return policies[i].ID.String() < policies[j].ID.String()
	})
}
