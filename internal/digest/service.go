// Package digest aggregates a time window of events into an immutable
// summary record. Digests cover what was neither suppressed nor escalated:
// events whose current decision is include_in_digest.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"callwatch/internal/attention/metrics"
	"callwatch/internal/attention/models"
	"callwatch/internal/ledger"
	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
	"callwatch/pkg/platform/sentinel"
	"callwatch/pkg/requestcontext"
)

// Service generates digests from the ledger.
type Service struct {
	ledger  ledger.Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs the digest service.
func New(led ledger.Ledger, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{ledger: led, logger: logger, metrics: m}, nil
}

// GenerateRequest scopes one digest run. The period is half-open:
// [PeriodStart, PeriodEnd).
type GenerateRequest struct {
	OrgID       id.OrgID
	Type        models.DigestType
	PeriodStart time.Time
	PeriodEnd   time.Time
	GeneratedBy string
}

// Generate counts the window's digest-eligible events and appends a Digest
// record. totals are always recomputed from the window query, never cached.
// An empty window is not an error. Re-running a window appends another row.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (id.DigestID, error) {
	start := time.Now()

	digest := &models.Digest{
		ID:          id.NewDigestID(),
		OrgID:       req.OrgID,
		Type:        req.Type,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		GeneratedBy: req.GeneratedBy,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := digest.Validate(); err != nil {
		return id.DigestID{}, err
	}

	// Window events and window decisions are independent reads; fetch them
	// concurrently and join in memory to find each event's current decision.
	var (
		events    []*models.AttentionEvent
		decisions []*models.AttentionDecision
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.ledger.QueryEvents(gctx, ledger.EventFilter{
			OrgID: req.OrgID,
			From:  req.PeriodStart,
			To:    req.PeriodEnd,
		})
		if err != nil {
			return fmt.Errorf("query window events: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		decisions, err = s.ledger.QueryDecisions(gctx, ledger.DecisionFilter{OrgID: req.OrgID})
		if err != nil {
			return fmt.Errorf("query decisions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return id.DigestID{}, dErrors.Wrap(dErrors.CodeInternal, "digest aggregation failed", err)
	}

	current := make(map[id.EventID]*models.AttentionDecision, len(events))
	for _, decision := range decisions {
		if existing, ok := current[decision.EventID]; !ok || decision.After(existing) {
			current[decision.EventID] = decision
		}
	}

	byType := make(map[string]int)
	total := 0
	for _, event := range events {
		decision, ok := current[event.ID]
		if !ok || decision.Kind != models.DecisionIncludeInDigest {
			continue
		}
		total++
		byType[event.EventType]++
	}

	digest.TotalEvents = total
	digest.SummaryText = summaryText(req.PeriodStart, req.PeriodEnd, total, byType)

	if err := s.ledger.AppendDigest(ctx, digest); err != nil {
		if errors.Is(err, sentinel.ErrAppendOnly) {
			return id.DigestID{}, dErrors.Wrap(dErrors.CodeAppendOnly, "digest rejected by append-only ledger", err)
		}
		return id.DigestID{}, dErrors.Wrap(dErrors.CodeInternal, "record digest failed", err)
	}
	s.metrics.ObserveDigest(time.Since(start))

	s.logger.InfoContext(ctx, "digest generated",
		"org_id", req.OrgID,
		"digest_id", digest.ID,
		"digest_type", digest.Type,
		"period_start", req.PeriodStart,
		"period_end", req.PeriodEnd,
		"total_events", total,
	)
	return digest.ID, nil
}

// summaryText renders the human-readable digest body with a per-type
// breakdown in descending count order.
func summaryText(from, to time.Time, total int, byType map[string]int) string {
	window := fmt.Sprintf("%s to %s", from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if total == 0 {
		return fmt.Sprintf("No events required attention from %s.", window)
	}

	type typeCount struct {
		name  string
		count int
	}
	counts := make([]typeCount, 0, len(byType))
	for name, count := range byType {
		counts = append(counts, typeCount{name: name, count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})

	parts := make([]string, 0, len(counts))
	for _, tc := range counts {
		parts = append(parts, fmt.Sprintf("%s: %d", tc.name, tc.count))
	}
	return fmt.Sprintf("%d event(s) from %s (%s).", total, window, strings.Join(parts, ", "))
}
