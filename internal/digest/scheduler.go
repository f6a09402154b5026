package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
)

// OrgSource supplies the organizations that receive scheduled digests.
// The host application owns organization membership; a static list from
// configuration works for single-tenant deployments.
type OrgSource interface {
	ListOrgs(ctx context.Context) ([]id.OrgID, error)
}

// StaticOrgs is a fixed OrgSource.
type StaticOrgs []id.OrgID

func (s StaticOrgs) ListOrgs(context.Context) ([]id.OrgID, error) {
	return append([]id.OrgID{}, s...), nil
}

// Scheduler generates per-org digests on a cron schedule. Each run covers
// the window since the previous tick, so consecutive digests tile the
// timeline without gaps. Delivery remains an external concern; the
// scheduler only classifies and records.
type Scheduler struct {
	service *Service
	orgs    OrgSource
	cron    *cron.Cron
	spec    string
	logger  *slog.Logger

	// cron runs each tick in its own goroutine, so a slow run can overlap
	// the next tick. mu serializes the window bookkeeping to keep windows
	// tiling.
	mu      sync.Mutex
	lastRun time.Time
}

// NewScheduler constructs a scheduler with a cron spec such as
// "0 8 * * *" (daily at 08:00).
func NewScheduler(service *Service, orgs OrgSource, spec string, logger *slog.Logger) (*Scheduler, error) {
	if service == nil {
		return nil, fmt.Errorf("digest service is required")
	}
	if orgs == nil {
		return nil, fmt.Errorf("org source is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse digest schedule %q: %w", spec, err)
	}
	return &Scheduler{
		service: service,
		orgs:    orgs,
		cron:    cron.New(),
		spec:    spec,
		logger:  logger,
	}, nil
}

// Start begins scheduling. The first tick covers the window from Start to
// the tick itself.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
	_, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("schedule digests: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runOnce generates one digest per organization for the elapsed window.
// Failures are per-org: one broken org does not block the rest.
func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	now := time.Now()
	from, to := s.lastRun, now
	s.lastRun = now
	s.mu.Unlock()

	orgs, err := s.orgs.ListOrgs(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled digest org listing failed", "error", err)
		return
	}
	for _, orgID := range orgs {
		_, err := s.service.Generate(ctx, GenerateRequest{
			OrgID:       orgID,
			Type:        models.DigestScheduled,
			PeriodStart: from,
			PeriodEnd:   to,
			GeneratedBy: "digest-scheduler",
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "scheduled digest generation failed",
				"org_id", orgID,
				"error", err,
			)
		}
	}
}
