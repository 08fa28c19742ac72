package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and token drivers.
const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	StoreDriver string // seat/point store: memory or mysql
	TokenDriver string // token store: memory or redis

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	QueueTokenSecret string        // secret used to sign queue credentials
	QueueCapacity    int           // how many tokens may be ACTIVE at once
	TokenActiveTTL   time.Duration // lifetime of an ACTIVE token
	SeatHoldTTL      time.Duration // lifetime of a seat hold
	AdvanceInterval  time.Duration // admission sweep period
	HoldSweepEvery   time.Duration // expired hold sweep period

	RabbitURL string // empty disables sale events
	LogLevel  string
	SeedDemo  bool
}

// Load reads configuration values from environment variables.  Missing
// required values are reported together in one error.
func Load() (Config, error) {
	cfg := Config{
		Env:              getenv("APP_ENV", "dev"),
		Port:             getenv("APP_PORT", "8080"),
		StoreDriver:      strings.ToLower(getenv("STORE_DRIVER", DriverMemory)),
		TokenDriver:      strings.ToLower(getenv("TOKEN_DRIVER", DriverMemory)),
		DBUser:           os.Getenv("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           getenv("DB_HOST", "127.0.0.1"),
		DBPort:           getenv("DB_PORT", "3306"),
		DBName:           os.Getenv("DB_NAME"),
		QueueTokenSecret: os.Getenv("QUEUE_TOKEN_SECRET"),
		QueueCapacity:    envInt("QUEUE_CAPACITY", 100),
		TokenActiveTTL:   envDur("TOKEN_ACTIVE_TTL", 10*time.Minute),
		SeatHoldTTL:      envDur("SEAT_HOLD_TTL", 5*time.Minute),
		AdvanceInterval:  envDur("QUEUE_ADVANCE_INTERVAL", time.Second),
		HoldSweepEvery:   envDur("HOLD_SWEEP_INTERVAL", 5*time.Second),
		RabbitURL:        firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		SeedDemo:         envBool("SEED_DEMO", true),
	}

	var missing []string
	if cfg.QueueTokenSecret == "" {
		missing = append(missing, "QUEUE_TOKEN_SECRET")
	}
	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverMySQL:
		if cfg.DBUser == "" {
			missing = append(missing, "DB_USER")
		}
		if cfg.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.TokenDriver != DriverMemory && cfg.TokenDriver != DriverRedis {
		return Config{}, fmt.Errorf("invalid TOKEN_DRIVER %q", cfg.TokenDriver)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.QueueCapacity < 1 {
		return Config{}, fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", cfg.QueueCapacity)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
