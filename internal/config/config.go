// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and UPREADY_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/okian/upready/internal/domain/model"
)

// Cache backends for the published snapshot.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
)

// Total-sleep policies.
const (
	PolicyAllStages  = "all_stages"
	PolicyAsleepOnly = "asleep_only"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Timezone names the IANA zone used for calendar days and weeks.
	// Empty means the process local zone.
	Timezone string `koanf:"timezone"`

	// QueueSize bounds the in-memory ingest queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingest workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the ingest deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// FetchTimeoutMS bounds each metric fetch inside a cycle.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// CycleTimeoutMS bounds scheduled cycles. Zero disables the bound.
	CycleTimeoutMS int `koanf:"cycle_timeout_ms"`

	// RefreshSchedule is a cron expression (seconds optional). Empty
	// disables scheduled refreshes.
	RefreshSchedule string `koanf:"refresh_schedule"`

	// TotalSleepPolicy is all_stages or asleep_only.
	TotalSleepPolicy string `koanf:"total_sleep_policy"`

	// DefaultAge is used for heart-rate zones when no birth date is known.
	DefaultAge int `koanf:"default_age"`

	// BirthDate (YYYY-MM-DD) seeds the profile at startup.
	BirthDate string `koanf:"birth_date"`

	// Platform sensor capabilities.
	BloodOxygenAvailable     bool `koanf:"blood_oxygen_available"`
	BodyTemperatureAvailable bool `koanf:"body_temperature_available"`

	// HistoryDays sets the readiness history window.
	HistoryDays int `koanf:"history_days"`

	// RetentionDays bounds how long raw samples are kept in memory.
	RetentionDays int `koanf:"retention_days"`

	// DatabasePath is the SQLite file for readiness records.
	DatabasePath string `koanf:"database_path"`

	// CacheBackend is memory, redis or sqlite.
	CacheBackend string `koanf:"cache_backend"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisKey      string `koanf:"redis_key"`

	// OpenAIAPIKey enables summarization. Without it cycles that reach the
	// summarizer fail.
	OpenAIAPIKey     string `koanf:"openai_api_key"`
	OpenAIBaseURL    string `koanf:"openai_base_url"`
	OpenAIModel      string `koanf:"openai_model"`
	SummaryMaxTokens int    `koanf:"summary_max_tokens"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		QueueSize:        10_000,
		WorkerCount:      runtime.NumCPU(),
		DedupeSize:       500_000,
		FetchTimeoutMS:   10_000,
		CycleTimeoutMS:   120_000,
		RefreshSchedule:  "0 */30 * * * *",
		TotalSleepPolicy: PolicyAllStages,
		DefaultAge:       30,
		HistoryDays:      30,
		RetentionDays:    120,
		DatabasePath:     "data/upready.db",
		CacheBackend:     CacheSQLite,
		RedisAddr:        "localhost:6379",
		RedisKey:         "upready:snapshot",
		OpenAIModel:      "gpt-4o-mini",
		SummaryMaxTokens: 200,
	}
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		add("log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.Location(); err != nil {
		add("timezone: %v", err)
	}
	if c.QueueSize < 1 {
		add("queue_size must be positive")
	}
	if c.DedupeSize < 1 {
		add("dedupe_size must be positive")
	}
	if c.FetchTimeoutMS < 1 {
		add("fetch_timeout_ms must be positive")
	}
	if c.CycleTimeoutMS < 0 {
		add("cycle_timeout_ms must not be negative")
	}
	if c.RefreshSchedule != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.RefreshSchedule); err != nil {
			add("refresh_schedule: %v", err)
		}
	}
	switch c.TotalSleepPolicy {
	case PolicyAllStages, PolicyAsleepOnly:
	default:
		add("total_sleep_policy must be %s or %s", PolicyAllStages, PolicyAsleepOnly)
	}
	if c.DefaultAge < 1 || c.DefaultAge > 120 {
		add("default_age must be between 1 and 120")
	}
	if _, err := c.BirthDateTime(); err != nil {
		add("birth_date: %v", err)
	}
	if c.HistoryDays < 1 || c.HistoryDays > 365 {
		add("history_days must be between 1 and 365")
	}
	if c.RetentionDays < 91 {
		add("retention_days must cover the 90-day resting heart-rate window")
	}
	switch c.CacheBackend {
	case CacheMemory, CacheSQLite:
	case CacheRedis:
		if c.RedisAddr == "" {
			add("redis_addr is required for the redis cache backend")
		}
	default:
		add("cache_backend must be memory, redis or sqlite, got %q", c.CacheBackend)
	}
	if c.DatabasePath == "" {
		add("database_path must not be empty")
	}
	if c.SummaryMaxTokens < 1 {
		add("summary_max_tokens must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// BirthDateTime parses BirthDate. It returns nil when unset.
func (c *Config) BirthDateTime() (*time.Time, error) {
	if strings.TrimSpace(c.BirthDate) == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DayLayout, strings.TrimSpace(c.BirthDate))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// CycleTimeout returns CycleTimeoutMS as a duration.
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutMS) * time.Millisecond
}

// Retention returns RetentionDays as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Capabilities returns the configured sensor capabilities.
func (c *Config) Capabilities() model.Capabilities {
	return model.Capabilities{
		BloodOxygen:     c.BloodOxygenAvailable,
		BodyTemperature: c.BodyTemperatureAvailable,
	}
}
