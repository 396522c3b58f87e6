// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the engine needs at startup.
type Config struct {
	Addr string

	// DatabaseURL enables the PostgreSQL stores when set; empty means
	// in-memory stores (development and tests).
	DatabaseURL string

	Redis RedisConfig

	// LedgerSigningKey is the master key for the audit chain HMAC. Per-chain
	// keys are derived from it; it must be at least 32 bytes in production.
	LedgerSigningKey string

	// JWTSigningKey verifies advocate bearer tokens on review endpoints.
	JWTSigningKey string

	// KafkaBrokers enables the Kafka advocate-notification sink when set.
	KafkaBrokers []string
	KafkaTopic   string

	// CodeValidity is the break-glass verification code window.
	CodeValidity time.Duration

	// SweepInterval is how often overdue escalation events are expired.
	SweepInterval time.Duration
}

// RedisConfig configures the optional Redis escalation store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("AEGIS_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LedgerSigningKey: envOr("LEDGER_SIGNING_KEY", "aegis-dev-ledger-key-change-in-production"),
		JWTSigningKey:    envOr("JWT_SIGNING_KEY", "aegis-dev-jwt-key-change-in-production"),
		KafkaTopic:       envOr("KAFKA_NOTIFY_TOPIC", "advocate-alerts"),
		CodeValidity:     durationOr("BREAK_GLASS_CODE_VALIDITY", 5*time.Minute),
		SweepInterval:    durationOr("BREAK_GLASS_SWEEP_INTERVAL", 30*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
