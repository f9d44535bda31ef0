package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JhonesBR/go-ledger/internal/ledger"
)

type StoreDriver string

const (
	DriverMemory   StoreDriver = "memory"
	DriverPostgres StoreDriver = "postgres"
	DriverSQLite   StoreDriver = "sqlite"
)

type Config struct {
	Env      string
	HTTPAddr string

	Store    StoreDriver
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
}

type DatabaseConfig struct {
	URL        string
	SQLitePath string
}

type RedisConfig struct {
	Addrs      []string
	Password   string
	UseCluster bool
	Namespace  string
}

func (r RedisConfig) Enabled() bool {
	return len(r.Addrs) > 0
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type LedgerConfig struct {
	MaxAttempts       int
	OpTimeout         time.Duration
	FinalizeTimeout   time.Duration
	Scale             int32
	ForceTwoPhase     bool
	PendingStaleAfter time.Duration
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
}

// Engine converts the settings into the engine configuration.
func (l LedgerConfig) Engine() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.MaxAttempts = l.MaxAttempts
	cfg.OpTimeout = l.OpTimeout
	cfg.FinalizeTimeout = l.FinalizeTimeout
	cfg.Scale = l.Scale
	cfg.MaxAmount = ledger.MaxForPrecision(20, l.Scale)
	cfg.ForceTwoPhase = l.ForceTwoPhase
	return cfg
}

// Load reads the configuration from the environment. Malformed values are
// reported together instead of falling back to defaults.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		Store:    StoreDriver(strings.ToLower(getEnv("STORE_DRIVER", string(DriverMemory)))),
		Database: DatabaseConfig{
			URL:        getEnv("DATABASE_URL", ""),
			SQLitePath: getEnv("SQLITE_PATH", "ledger.db"),
		},
		Redis: RedisConfig{
			Addrs:      getEnvAsList("REDIS_ADDR"),
			Password:   getEnv("REDIS_PASS", ""),
			UseCluster: p.boolVar("REDIS_CLUSTER", false),
			Namespace:  getEnv("REDIS_NAMESPACE", "ledger"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "ledger.events"),
		},
		Ledger: LedgerConfig{
			MaxAttempts:       p.intVar("LEDGER_MAX_ATTEMPTS", 5),
			OpTimeout:         p.durationVar("LEDGER_OP_TIMEOUT", 5*time.Second),
			FinalizeTimeout:   p.durationVar("LEDGER_FINALIZE_TIMEOUT", 10*time.Second),
			Scale:             int32(p.intVar("LEDGER_SCALE", 2)),
			ForceTwoPhase:     p.boolVar("LEDGER_FORCE_TWO_PHASE", false),
			PendingStaleAfter: p.durationVar("LEDGER_PENDING_STALE_AFTER", 30*time.Second),
			SweepInterval:     p.durationVar("LEDGER_SWEEP_INTERVAL", 10*time.Second),
			ReconcileInterval: p.durationVar("LEDGER_RECONCILE_INTERVAL", 15*time.Second),
		},
	}

	switch cfg.Store {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.Database.URL == "" {
			p.fail("DATABASE_URL is required for the postgres store")
		}
	default:
		p.fail("STORE_DRIVER %q is not one of memory, postgres, sqlite", cfg.Store)
	}
	if cfg.Ledger.MaxAttempts < 1 {
		p.fail("LEDGER_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.Ledger.Scale < 1 || cfg.Ledger.Scale > 8 {
		p.fail("LEDGER_SCALE must be between 1 and 8")
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable so Load can report them at once.
type parser struct {
	errs []error
}

func (p *parser) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf(format, args...))
}

func (p *parser) intVar(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail("%s: %q is not an integer", key, raw)
		return fallback
	}
	return v
}

func (p *parser) boolVar(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail("%s: %q is not a boolean", key, raw)
		return fallback
	}
	return v
}

func (p *parser) durationVar(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		p.fail("%s: %q is not a positive duration", key, raw)
		return fallback
	}
	return v
}
