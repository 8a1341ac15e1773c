package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production
	// CacheMaxAge is the Cache-Control max-age, in seconds, stamped on
	// served artifact responses.
	CacheMaxAge int

	// Database (schedule reference data)
	Database DatabaseConfig

	// Object store (bronze/silver/gold/served layers)
	Store StoreConfig

	// Upstream stats feed
	Feed FeedConfig

	// Pipeline tuning
	Pipeline PipelineConfig

	// Event routing
	Events EventsConfig

	// Scheduled jobs
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// StoreConfig holds object store configuration. Backend "memory" keeps
// everything in process and is meant for local runs and tests.
type StoreConfig struct {
	Backend         string // memory, s3
	Bucket          string
	Region          string
	Endpoint        string // set for MinIO or localstack
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// FeedConfig holds upstream stats feed configuration.
type FeedConfig struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int

	// Circuit breaker
	BreakerMaxFailures uint32
	BreakerCooldown    time.Duration
}

// PipelineConfig holds stage tuning knobs.
type PipelineConfig struct {
	// CompletenessThreshold gates the daily ready marker: conformed games
	// must cover at least this share of the scheduled games.
	CompletenessThreshold float64
	// ArtifactCoverage gates the served index pointer: this share of
	// planned bodies must render before the date is published.
	ArtifactCoverage float64

	IngestWorkers int
	RenderWorkers int

	// IngestRosters folds team roster fetches into the nightly ingest.
	IngestRosters bool

	FetchMaxRetries int
	FetchRetryBase  time.Duration

	TopListSize int
	// SweepDays is how many trailing days the conformance sweep re-checks.
	SweepDays int

	// StageTimeout bounds one event-driven stage invocation (conform or
	// build) in the worker.
	StageTimeout time.Duration
}

// EventsConfig holds event router configuration.
type EventsConfig struct {
	QueueSize   int
	MaxRetries  int
	PoisonTopic string
}

// SchedulerConfig holds cron specs for the standing jobs. Specs use the
// six-field form with a leading seconds column.
type SchedulerConfig struct {
	Enabled          bool
	IngestSpec       string
	SweepSpec        string
	ScheduleSyncSpec string
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "8089"),
		Env:         getEnv("ENV", "development"),
		CacheMaxAge: getEnvAsInt("SERVE_CACHE_MAX_AGE", 3600),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "fastbreak"),
			User:            getEnv("DB_USER", "fastbreak"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Object store
		Store: StoreConfig{
			Backend:         getEnv("STORE_BACKEND", "memory"),
			Bucket:          getEnv("STORE_BUCKET", ""),
			Region:          getEnv("STORE_REGION", "us-east-1"),
			Endpoint:        getEnv("STORE_ENDPOINT", ""),
			AccessKeyID:     getEnv("STORE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("STORE_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvAsBool("STORE_USE_PATH_STYLE", false),
		},

		// Upstream feed
		Feed: FeedConfig{
			BaseURL:            getEnv("FEED_BASE_URL", "https://cdn.nba.com/static/json"),
			Timeout:            getEnvAsDuration("FEED_TIMEOUT", "15s"),
			UserAgent:          getEnv("FEED_USER_AGENT", "fastbreak/1.0"),
			RequestsPerSecond:  getEnvAsFloat("FEED_RATE_LIMIT_RPS", 4.0),
			Burst:              getEnvAsInt("FEED_RATE_LIMIT_BURST", 2),
			BreakerMaxFailures: uint32(getEnvAsInt("FEED_BREAKER_MAX_FAILURES", 5)),
			BreakerCooldown:    getEnvAsDuration("FEED_BREAKER_COOLDOWN", "60s"),
		},

		// Pipeline
		Pipeline: PipelineConfig{
			CompletenessThreshold: getEnvAsFloat("PIPELINE_COMPLETENESS_THRESHOLD", 1.0),
			ArtifactCoverage:      getEnvAsFloat("PIPELINE_ARTIFACT_COVERAGE", 0.9),
			IngestWorkers:         getEnvAsInt("PIPELINE_INGEST_WORKERS", 4),
			RenderWorkers:         getEnvAsInt("PIPELINE_RENDER_WORKERS", 4),
			IngestRosters:         getEnvAsBool("PIPELINE_INGEST_ROSTERS", true),
			FetchMaxRetries:       getEnvAsInt("PIPELINE_FETCH_MAX_RETRIES", 3),
			FetchRetryBase:        getEnvAsDuration("PIPELINE_FETCH_RETRY_BASE", "500ms"),
			TopListSize:           getEnvAsInt("PIPELINE_TOP_LIST_SIZE", 10),
			SweepDays:             getEnvAsInt("PIPELINE_SWEEP_DAYS", 3),
			StageTimeout:          getEnvAsDuration("PIPELINE_STAGE_TIMEOUT", "10m"),
		},

		// Events
		Events: EventsConfig{
			QueueSize:   getEnvAsInt("EVENTS_QUEUE_SIZE", 64),
			MaxRetries:  getEnvAsInt("EVENTS_MAX_RETRIES", 5),
			PoisonTopic: getEnv("EVENTS_POISON_TOPIC", "events.poison"),
		},

		// Scheduler
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			IngestSpec:       getEnv("SCHEDULER_INGEST_SPEC", "0 0 6 * * *"),
			SweepSpec:        getEnv("SCHEDULER_SWEEP_SPEC", "0 30 6 * * *"),
			ScheduleSyncSpec: getEnv("SCHEDULER_SCHEDULE_SYNC_SPEC", "0 0 5 * * 1"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Store.Backend {
	case "memory":
		// No further settings needed.
	case "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("STORE_BUCKET is required when STORE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: memory, s3")
	}

	if c.Pipeline.CompletenessThreshold <= 0 || c.Pipeline.CompletenessThreshold > 1 {
		return fmt.Errorf("PIPELINE_COMPLETENESS_THRESHOLD must be in (0, 1]")
	}
	if c.Pipeline.ArtifactCoverage <= 0 || c.Pipeline.ArtifactCoverage > 1 {
		return fmt.Errorf("PIPELINE_ARTIFACT_COVERAGE must be in (0, 1]")
	}
	if c.Feed.RequestsPerSecond <= 0 {
		return fmt.Errorf("FEED_RATE_LIMIT_RPS must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
