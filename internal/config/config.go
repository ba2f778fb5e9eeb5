// Package config loads service settings from an optional YAML file and then
// lets environment variables override them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "github.com/goccy/go-yaml"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	DBMigrate   bool   `yaml:"db_migrate"`
	RedisURL    string `yaml:"redis_url"`

	// GraphFile seeds the route graph. Without it a GridRows x GridCols grid
	// is used.
	GraphFile  string  `yaml:"graph_file"`
	GridRows   int     `yaml:"grid_rows"`
	GridCols   int     `yaml:"grid_cols"`
	GridWeight float64 `yaml:"grid_weight"`

	LockRange              int  `yaml:"lock_range"`
	Candidates             int  `yaml:"candidates"`
	UndirectedReservations bool `yaml:"undirected_reservations"`

	QueueIntervalMS    int    `yaml:"queue_interval_ms"`
	ExecutorIntervalMS int    `yaml:"executor_interval_ms"`
	OptimizeIterations int    `yaml:"optimize_iterations"`
	Sequencer          string `yaml:"sequencer"` // identity | 2opt | anneal
	Seed               int64  `yaml:"seed"`

	FleetSize          int `yaml:"fleet_size"`
	HeartbeatTimeoutMS int `yaml:"heartbeat_timeout_ms"`

	LogFormat string `yaml:"log_format"` // text | json
	LogLevel  string `yaml:"log_level"`

	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`

	// AuthMode gates mutating endpoints: off, dev (role tokens) or hmac (HS256).
	AuthMode   string `yaml:"auth_mode"`
	AuthSecret string `yaml:"auth_secret"`

	// WebhookURL receives every fleet event (or WebhookTypes) as a signed post.
	WebhookURL         string   `yaml:"webhook_url"`
	WebhookSecret      string   `yaml:"webhook_secret"`
	WebhookTypes       []string `yaml:"webhook_types"`
	WebhookMaxAttempts int      `yaml:"webhook_max_attempts"`
}

func Default() Config {
	return Config{
		Port:               "8080",
		DBMigrate:          true,
		GridRows:           4,
		GridCols:           4,
		GridWeight:         1,
		LockRange:          5,
		Candidates:         3,
		QueueIntervalMS:    500,
		ExecutorIntervalMS: 250,
		OptimizeIterations: 10,
		Sequencer:          "2opt",
		FleetSize:          3,
		HeartbeatTimeoutMS: 5000,
		LogFormat:          "text",
		LogLevel:           "info",
		RateRPS:            50,
		RateBurst:          100,
		AuthMode:           "dev",
		WebhookMaxAttempts: 10,
	}
}

// Load reads YAML over the defaults, applies environment overrides and
// clamps nonsense values. An empty path means defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	cfg.clamp()
	return cfg, nil
}

func applyEnv(c *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(getenv(key)); err == nil {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("GRAPH_FILE", &c.GraphFile)
	str("SEQUENCER", &c.Sequencer)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_LEVEL", &c.LogLevel)
	str("AUTH_MODE", &c.AuthMode)
	str("AUTH_HMAC_SECRET", &c.AuthSecret)
	str("WEBHOOK_URL", &c.WebhookURL)
	str("WEBHOOK_SECRET", &c.WebhookSecret)
	num("WEBHOOK_MAX_ATTEMPTS", &c.WebhookMaxAttempts)
	if v := strings.TrimSpace(getenv("WEBHOOK_TYPES")); v != "" {
		c.WebhookTypes = strings.Split(v, ",")
	}
	num("LOCK_RANGE", &c.LockRange)
	num("QUEUE_INTERVAL_MS", &c.QueueIntervalMS)
	num("EXECUTOR_INTERVAL_MS", &c.ExecutorIntervalMS)
	num("OPTIMIZE_ITERATIONS", &c.OptimizeIterations)
	num("FLEET_SIZE", &c.FleetSize)
	num("RATE_BURST", &c.RateBurst)
	if v := getenv("DB_MIGRATE"); v != "" {
		c.DBMigrate = v != "false"
	}
	if v, err := strconv.ParseFloat(getenv("RATE_RPS"), 64); err == nil {
		c.RateRPS = v
	}
	if v, err := strconv.ParseInt(getenv("SEED"), 10, 64); err == nil {
		c.Seed = v
	}
}

func (c *Config) clamp() {
	d := Default()
	if c.LockRange <= 0 {
		c.LockRange = d.LockRange
	}
	if c.Candidates <= 0 {
		c.Candidates = d.Candidates
	}
	if c.QueueIntervalMS <= 0 {
		c.QueueIntervalMS = d.QueueIntervalMS
	}
	if c.ExecutorIntervalMS <= 0 {
		c.ExecutorIntervalMS = d.ExecutorIntervalMS
	}
	if c.OptimizeIterations <= 0 {
		c.OptimizeIterations = d.OptimizeIterations
	}
	if c.FleetSize < 0 {
		c.FleetSize = 0
	}
	if c.GridRows <= 0 || c.GridCols <= 0 {
		c.GridRows, c.GridCols = d.GridRows, d.GridCols
	}
	if c.GridWeight <= 0 {
		c.GridWeight = d.GridWeight
	}
	if c.HeartbeatTimeoutMS < 0 {
		c.HeartbeatTimeoutMS = 0
	}
	if c.WebhookMaxAttempts <= 0 {
		c.WebhookMaxAttempts = d.WebhookMaxAttempts
	}
	if c.RateRPS < 0 {
		c.RateRPS = 0
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	c.Sequencer = strings.ToLower(c.Sequencer)
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.AuthMode = strings.ToLower(c.AuthMode)
}

func (c Config) Addr() string { return ":" + c.Port }

func (c Config) QueueInterval() time.Duration {
	return time.Duration(c.QueueIntervalMS) * time.Millisecond
}

func (c Config) ExecutorInterval() time.Duration {
	return time.Duration(c.ExecutorIntervalMS) * time.Millisecond
}

func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMS) * time.Millisecond
}

// Redacted is the config as shown on the debug endpoint, without secrets.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"port":                    c.Port,
		"has_database_url":        c.DatabaseURL != "",
		"has_redis_url":           c.RedisURL != "",
		"graph_file":              c.GraphFile,
		"lock_range":              c.LockRange,
		"candidates":              c.Candidates,
		"undirected_reservations": c.UndirectedReservations,
		"queue_interval_ms":       c.QueueIntervalMS,
		"executor_interval_ms":    c.ExecutorIntervalMS,
		"optimize_iterations":     c.OptimizeIterations,
		"sequencer":               c.Sequencer,
		"fleet_size":              c.FleetSize,
		"rate_rps":                c.RateRPS,
		"rate_burst":              c.RateBurst,
		"auth_mode":               c.AuthMode,
		"has_auth_secret":         c.AuthSecret != "",
		"has_webhook_url":         c.WebhookURL != "",
		"webhook_types":           c.WebhookTypes,
	}
}
