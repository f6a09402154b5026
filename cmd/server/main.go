// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service
// packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callwatch/internal/attention"
	"callwatch/internal/attention/evaluators"
	attentionhandler "callwatch/internal/attention/handler"
	"callwatch/internal/attention/metrics"
	"callwatch/internal/attention/recurrence"
	"callwatch/internal/audit"
	"callwatch/internal/digest"
	digesthandler "callwatch/internal/digest/handler"
	"callwatch/internal/ledger"
	"callwatch/internal/platform/config"
	"callwatch/internal/platform/httpserver"
	"callwatch/internal/platform/logger"
	"callwatch/internal/platform/middleware"
	platformredis "callwatch/internal/platform/redis"
	"callwatch/internal/policy"
	id "callwatch/pkg/domain"
	dErrors "callwatch/pkg/domain-errors"
	"callwatch/pkg/platform/httputil"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: postgres when configured, in-memory for dev.
	var (
		db       *sql.DB
		led      ledger.Ledger
		policies policy.Store
	)
	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		led = ledger.NewPostgres(db)
		policies = policy.NewPostgres(db, log)
	} else {
		log.Warn("no postgres URL configured, running with in-memory storage")
		led = ledger.NewMemory()
		policies = policy.NewMemory()
	}

	// Recurrence index: redis when configured, per-process otherwise.
	var index recurrence.Index = recurrence.NewMemory()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		index = recurrence.NewRedis(redisClient.Client)
	}

	// Audit sink: kafka when configured, in-memory otherwise.
	var auditStore audit.Store = audit.NewMemoryStore()
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		auditStore = publisher
	}
	// Overrides enqueue audit entries and a worker persists them off the
	// request path.
	auditInbox := audit.NewChannelStore(256)
	auditWorker := audit.NewWorker(auditStore, auditInbox.Inbox(), log)
	go func() {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker exited", "error", err)
		}
	}()
	auditService := audit.NewService(auditInbox)

	engineMetrics := metrics.New()
	registry := evaluators.NewRegistry(cfg.CustomEvalTimeout)

	engine, err := attention.New(led, policies, log,
		attention.WithRecurrenceIndex(index),
		attention.WithCustomRegistry(registry),
		attention.WithAudit(auditService),
		attention.WithMetrics(engineMetrics),
	)
	if err != nil {
		return err
	}

	digestService, err := digest.New(led, log, engineMetrics)
	if err != nil {
		return err
	}

	if cfg.DigestSchedule != "" {
		orgs := make(digest.StaticOrgs, 0, len(cfg.DigestOrgs))
		for _, raw := range cfg.DigestOrgs {
			orgID, err := id.ParseOrgID(raw)
			if err != nil {
				return err
			}
			orgs = append(orgs, orgID)
		}
		scheduler, err := digest.NewScheduler(digestService, orgs, cfg.DigestSchedule, log)
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	var healthChecks []func(context.Context) error
	if db != nil {
		healthChecks = append(healthChecks, db.PingContext)
	}
	if redisClient != nil {
		healthChecks = append(healthChecks, redisClient.Health)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RequestTime)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range healthChecks {
			if err := check(r.Context()); err != nil {
				httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "dependency unavailable", err))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	attentionhandler.New(engine, log).Register(router)
	digesthandler.New(digestService, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting callwatch", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
