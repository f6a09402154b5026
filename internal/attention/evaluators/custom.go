package evaluators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callwatch/internal/attention/models"
	"callwatch/internal/policy"
)

// DefaultCustomTimeout bounds custom evaluators that call out to external
// services. On timeout the policy is treated as a non-match so a slow rule
// can never hang ingestion.
const DefaultCustomTimeout = 2 * time.Second

// CustomEvaluator interprets one named custom rule. Implementations are
// registered by the host application; the engine treats the rule expression
// as opaque.
type CustomEvaluator interface {
	Evaluate(ctx context.Context, event *models.AttentionEvent, cfg *policy.CustomConfig) (*Result, error)
}

// CustomEvaluatorFunc adapts a function to the CustomEvaluator interface.
type CustomEvaluatorFunc func(ctx context.Context, event *models.AttentionEvent, cfg *policy.CustomConfig) (*Result, error)

func (f CustomEvaluatorFunc) Evaluate(ctx context.Context, event *models.AttentionEvent, cfg *policy.CustomConfig) (*Result, error) {
	return f(ctx, event, cfg)
}

// Registry dispatches custom policies to registered evaluators by rule name
// and enforces the evaluation timeout.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]CustomEvaluator
	timeout    time.Duration
}

// NewRegistry constructs an empty registry with the given timeout;
// non-positive timeouts fall back to DefaultCustomTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultCustomTimeout
	}
	return &Registry{
		evaluators: make(map[string]CustomEvaluator),
		timeout:    timeout,
	}
}

// Register installs an evaluator for a rule name, replacing any previous one.
func (r *Registry) Register(rule string, evaluator CustomEvaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[rule] = evaluator
}

// Evaluate runs the evaluator registered for cfg.Rule under the timeout.
// An unknown rule, an evaluator error, or a timeout all return an error;
// the engine logs it and proceeds as if the policy did not match.
func (r *Registry) Evaluate(ctx context.Context, event *models.AttentionEvent, cfg *policy.CustomConfig) (*Result, error) {
	r.mu.RLock()
	evaluator, ok := r.evaluators[cfg.Rule]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no evaluator registered for custom rule %q", cfg.Rule)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := evaluator.Evaluate(ctx, event, cfg)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("custom rule %q: %w", cfg.Rule, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("custom rule %q: %w", cfg.Rule, out.err)
		}
		return out.result, nil
	}
}
