// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Archive backend selectors.
const (
	ArchiveNone     = "none"
	ArchiveSQLite   = "sqlite"
	ArchivePostgres = "postgres"
)

// Config holds every runtime setting of the service.
type Config struct {
	// Addr is the listen address of the search API.
	Addr string
	// GinMode selects gin's debug/release behavior.
	GinMode string
	// MetricsPort exposes /metrics; 0 disables the metrics server.
	MetricsPort int

	// FetchTimeout bounds each upstream page fetch.
	FetchTimeout time.Duration
	// Fingerprint names the TLS client profile (chrome, firefox, go).
	Fingerprint string
	// ProxyFile optionally points at a newline-separated proxy list.
	ProxyFile string
	// ChromeBin overrides headless browser discovery.
	ChromeBin string

	// ArchiveBackend selects fetch-transcript retention: none, sqlite,
	// postgres.
	ArchiveBackend string
	SQLitePath     string
	PostgresDSN    string

	// OpenAI-compatible enrichment capability. An empty key disables it;
	// enrichment then runs entirely on heuristic fallbacks.
	OpenAIKey            string
	OpenAIBaseURL        string
	OpenAIPlateModel     string
	OpenAIValuationModel string
	EnrichWorkers        int
}

// Load reads the optional .env file and the environment.
func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Addr:                 getEnv("CARSIFT_ADDR", ":8080"),
		GinMode:              getEnv("GIN_MODE", "release"),
		Fingerprint:          getEnv("CARSIFT_FINGERPRINT", "chrome"),
		ProxyFile:            strings.TrimSpace(os.Getenv("CARSIFT_PROXY_FILE")),
		ChromeBin:            strings.TrimSpace(os.Getenv("CHROME_BIN")),
		ArchiveBackend:       getEnv("CARSIFT_ARCHIVE", ArchiveNone),
		SQLitePath:           getEnv("CARSIFT_SQLITE_PATH", "carsift.db"),
		PostgresDSN:          strings.TrimSpace(os.Getenv("CARSIFT_POSTGRES_DSN")),
		OpenAIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:        strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIPlateModel:     strings.TrimSpace(os.Getenv("OPENAI_PLATE_MODEL")),
		OpenAIValuationModel: strings.TrimSpace(os.Getenv("OPENAI_VALUATION_MODEL")),
	}

	var err error
	if cfg.MetricsPort, err = getIntEnv("CARSIFT_METRICS_PORT", 0); err != nil {
		return Config{}, err
	}
	if cfg.EnrichWorkers, err = getIntEnv("CARSIFT_ENRICH_WORKERS", 3); err != nil {
		return Config{}, err
	}

	timeoutSecs, err := getIntEnv("CARSIFT_FETCH_TIMEOUT_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}
	cfg.FetchTimeout = time.Duration(timeoutSecs) * time.Second

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.ArchiveBackend {
	case ArchiveNone, ArchiveSQLite, ArchivePostgres:
	default:
		return fmt.Errorf("CARSIFT_ARCHIVE must be %s, %s or %s, got %q",
			ArchiveNone, ArchiveSQLite, ArchivePostgres, c.ArchiveBackend)
	}
	if c.ArchiveBackend == ArchivePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("CARSIFT_POSTGRES_DSN is required with the postgres archive")
	}
	if c.EnrichWorkers <= 0 {
		return fmt.Errorf("CARSIFT_ENRICH_WORKERS must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return val, nil
}
