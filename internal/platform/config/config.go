// Package config builds service configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the engine's process-level configuration.
type Server struct {
	Addr string

	// PostgresURL selects the durable ledger and policy store; empty runs
	// everything in memory (dev mode).
	PostgresURL string

	// Redis backs the recurrence index across instances; empty falls back
	// to the in-process index.
	Redis RedisConfig

	// KafkaBrokers/KafkaAuditTopic wire the audit sink to the externally
	// owned audit log. Empty brokers keep audit entries in memory.
	KafkaBrokers    []string
	KafkaAuditTopic string

	// DigestSchedule is a cron spec for scheduled digests; empty disables
	// the scheduler.
	DigestSchedule string
	// DigestOrgs lists organization ids receiving scheduled digests.
	DigestOrgs []string

	// CustomEvalTimeout bounds custom policy evaluators.
	CustomEvalTimeout time.Duration
}

// RedisConfig captures Redis connection tuning.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:            envOr("CALLWATCH_ADDR", ":8080"),
		PostgresURL:     os.Getenv("CALLWATCH_POSTGRES_URL"),
		KafkaBrokers:    splitList(os.Getenv("CALLWATCH_KAFKA_BROKERS")),
		KafkaAuditTopic: envOr("CALLWATCH_KAFKA_AUDIT_TOPIC", "callwatch.audit"),
		DigestSchedule:  os.Getenv("CALLWATCH_DIGEST_SCHEDULE"),
		DigestOrgs:      splitList(os.Getenv("CALLWATCH_DIGEST_ORGS")),
		Redis: RedisConfig{
			URL:          os.Getenv("CALLWATCH_REDIS_URL"),
			PoolSize:     envIntOr("CALLWATCH_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("CALLWATCH_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("CALLWATCH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("CALLWATCH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("CALLWATCH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		CustomEvalTimeout: envDurationOr("CALLWATCH_CUSTOM_EVAL_TIMEOUT", 2*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
