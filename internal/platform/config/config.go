package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean and deployments stay twelve-factor.
type Config struct {
	Addr          string
	JWTSigningKey string

	// DatabaseURL is optional; when empty the in-memory stores are used
	// (development and unit-test mode).
	DatabaseURL string

	// RedisURL is optional; when empty certification idempotency reservations
	// are kept in process memory.
	RedisURL string

	// KafkaBrokers is optional; when empty audit entries are persisted but not
	// published to the audit topic.
	KafkaBrokers []string
	AuditTopic   string

	Ledger LedgerConfig
}

// LedgerConfig bounds the certification confirm loop.
type LedgerConfig struct {
	URL             string
	ConfirmDeadline time.Duration
	ConfirmInterval time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          getenv("TERRIER_ADDR", ":8080"),
		JWTSigningKey: getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		AuditTopic:    getenv("AUDIT_TOPIC", "terrier.audit"),
		Ledger: LedgerConfig{
			URL:             os.Getenv("LEDGER_URL"),
			ConfirmDeadline: getduration("LEDGER_CONFIRM_DEADLINE", 30*time.Second),
			ConfirmInterval: getduration("LEDGER_CONFIRM_INTERVAL", 500*time.Millisecond),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
