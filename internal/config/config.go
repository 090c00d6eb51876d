package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the environment-driven configuration surface for the server
// and workers.
type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	LogLevel    string

	// Audit engine
	EngineURL    string        // base URL of the Lighthouse runner service
	ChromePath   string        // headless browser binary
	AuditTimeout time.Duration // deadline for a single executor run

	// Job dispatch
	AuditWorkers    int           // worker goroutines claiming jobs
	AuditSlots      int           // max concurrently held browser instances
	JobMaxAttempts  int           // attempts per retryable step
	JobBackoff      time.Duration // base backoff between attempts
	JobTimeout      time.Duration // wall-clock bound per job, independent of AuditTimeout
	JobPollInterval time.Duration // queue poll cadence

	// Status polling
	PollInterval time.Duration
	PollMaxWait  time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if out, err := time.ParseDuration(v); err == nil {
			return out
		}
	}
	return def
}

// Load reads configuration from the environment, honoring a local .env
// file when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:         getenv("APP_ENV", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		EngineURL:    getenv("ENGINE_URL", "http://localhost:3333"),
		ChromePath:   getenv("CHROME_PATH", "chromium"),
		AuditTimeout: getenvDuration("AUDIT_TIMEOUT", 60*time.Second),

		AuditWorkers:    getenvInt("AUDIT_WORKERS", 2),
		AuditSlots:      getenvInt("AUDIT_SLOTS", 2),
		JobMaxAttempts:  getenvInt("JOB_MAX_ATTEMPTS", 3),
		JobBackoff:      getenvDuration("JOB_RETRY_BACKOFF", time.Second),
		JobTimeout:      getenvDuration("JOB_TIMEOUT", 5*time.Minute),
		JobPollInterval: getenvDuration("JOB_POLL_INTERVAL", 500*time.Millisecond),

		PollInterval: getenvDuration("POLL_INTERVAL", 2*time.Second),
		PollMaxWait:  getenvDuration("POLL_MAX_WAIT", 300*time.Second),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	if cfg.AuditSlots < 1 {
		return cfg, fmt.Errorf("AUDIT_SLOTS must be at least 1")
	}
	return cfg, nil
}
