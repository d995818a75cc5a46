// Package config loads runtime settings from an optional .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port int `env:"ADHERENCE_PORT,default=8080"`

	DBDriver string `env:"ADHERENCE_DB_DRIVER,default=sqlite3"`
	DBPath   string `env:"ADHERENCE_DB,default=compliance.db"`

	// Empty disables the shared cache; a process-local cache is used instead.
	RedisAddr string        `env:"ADHERENCE_REDIS_ADDR"`
	CacheTTL  time.Duration `env:"ADHERENCE_CACHE_TTL,default=5m"`

	// Cron spec for the duplicate sweep; SweepEnabled=false turns the
	// scheduler off. `complianced sweep` and the admin route still work.
	SweepEnabled  bool   `env:"ADHERENCE_SWEEP_ENABLED,default=true"`
	SweepSchedule string `env:"ADHERENCE_SWEEP_SCHEDULE,default=@every 1h"`

	RequestTimeout time.Duration `env:"ADHERENCE_REQUEST_TIMEOUT,default=5s"`
	MaxRetries     int           `env:"ADHERENCE_MAX_RETRIES,default=1"`

	// Toggle requests per second allowed per client, and burst.
	ToggleRate  float64 `env:"ADHERENCE_TOGGLE_RATE,default=5"`
	ToggleBurst int     `env:"ADHERENCE_TOGGLE_BURST,default=10"`

	AllowedOrigins string `env:"ADHERENCE_ALLOWED_ORIGINS,default=http://localhost:5173 http://localhost:8080"`
	LogLevel       string `env:"ADHERENCE_LOG_LEVEL,default=info"`
	LogJSON        bool   `env:"ADHERENCE_LOG_JSON,default=false"`
}

// Load reads envFile (if it exists) into the environment, then decodes the
// environment into a Config. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values envdecode cannot.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("ADHERENCE_DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("ADHERENCE_PORT: out of range: %d", c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("ADHERENCE_MAX_RETRIES: must be >= 0")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("ADHERENCE_LOG_LEVEL: %w", err)
	}
	return nil
}

// Origins splits AllowedOrigins on commas or whitespace.
func (c Config) Origins() []string {
	return strings.FieldsFunc(c.AllowedOrigins, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// Logger builds the process logger from LogLevel and LogJSON.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if c.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
