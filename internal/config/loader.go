// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config captures environment driven configuration values for the station
// engine.
type Config struct {
	HTTPPort int    `env:"STATION_HTTP_PORT" envDefault:"8080"`
	Storage  string `env:"STATION_STORAGE" envDefault:"sqlite"`

	SQLitePath string `env:"STATION_SQLITE_PATH" envDefault:"stations.db"`
	RedisURL   string `env:"STATION_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	// EventsToRedis also publishes events on EventsChannel when Storage is
	// not redis.
	EventsToRedis bool   `env:"STATION_EVENTS_REDIS" envDefault:"false"`
	EventsChannel string `env:"STATION_EVENTS_CHANNEL" envDefault:"station-events"`

	XPPerRupee       decimal.Decimal `env:"STATION_XP_PER_RUPEE" envDefault:"0.1"`
	XPPerLevel       int64           `env:"STATION_XP_PER_LEVEL" envDefault:"1000"`
	PointsPerLevelUp int64           `env:"STATION_POINTS_PER_LEVEL_UP" envDefault:"100"`
	SplitTolerance   decimal.Decimal `env:"STATION_SPLIT_TOLERANCE" envDefault:"0.1"`

	ConflictRetries uint          `env:"STATION_CONFLICT_RETRIES" envDefault:"5"`
	ConflictBackoff time.Duration `env:"STATION_CONFLICT_BACKOFF" envDefault:"10ms"`

	ExpirySweep    string `env:"STATION_EXPIRY_SWEEP" envDefault:"@every 1m"`
	MetricsEnabled bool   `env:"STATION_METRICS_ENABLED" envDefault:"true"`
	OTelEndpoint   string `env:"STATION_OTEL_ENDPOINT"`
	LogLevel       string `env:"STATION_LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional dotenv file, parses the process environment and
// validates the result. The dotenv path comes from STATION_ENV_FILE and
// defaults to .env; a missing file is ignored and variables already set in
// the environment win over the file.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv("STATION_ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every key holding an unusable value in one error.
func (c Config) Validate() error {
	invalid := make([]string, 0, 2)

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, "STATION_HTTP_PORT")
	}
	switch c.Storage {
	case StorageMemory, StorageRedis:
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			invalid = append(invalid, "STATION_SQLITE_PATH")
		}
	default:
		invalid = append(invalid, "STATION_STORAGE")
	}
	if (c.Storage == StorageRedis || c.EventsToRedis) && strings.TrimSpace(c.RedisURL) == "" {
		invalid = append(invalid, "STATION_REDIS_URL")
	}
	if !c.XPPerRupee.IsPositive() {
		invalid = append(invalid, "STATION_XP_PER_RUPEE")
	}
	if c.XPPerLevel <= 0 {
		invalid = append(invalid, "STATION_XP_PER_LEVEL")
	}
	if c.PointsPerLevelUp < 0 {
		invalid = append(invalid, "STATION_POINTS_PER_LEVEL_UP")
	}
	if c.SplitTolerance.IsNegative() {
		invalid = append(invalid, "STATION_SPLIT_TOLERANCE")
	}
	if c.ConflictRetries == 0 {
		invalid = append(invalid, "STATION_CONFLICT_RETRIES")
	}
	if c.ConflictBackoff < 0 {
		invalid = append(invalid, "STATION_CONFLICT_BACKOFF")
	}
	if c.ExpirySweep != "" {
		if _, err := cron.ParseStandard(c.ExpirySweep); err != nil {
			invalid = append(invalid, "STATION_EXPIRY_SWEEP")
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		invalid = append(invalid, "STATION_LOG_LEVEL")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}
