// Package daemon manages the focus daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/scheduler"
	"github.com/tutu-network/focus/internal/timewindow"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Tasks     TasksConfig     `toml:"tasks"`
	Sweep     SweepConfig     `toml:"sweep"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout string   `toml:"request_timeout"`
	AdminToken     string   `toml:"admin_token"` // empty disables /api/admin
}

// CalendarConfig fixes the zone that defines days and weeks.
type CalendarConfig struct {
	Timezone string `toml:"timezone"`
}

// TasksConfig controls the task ledger.
type TasksConfig struct {
	DailyLimit int `toml:"daily_limit"`
}

// SweepConfig controls the daily reward sweep.
type SweepConfig struct {
	Enabled     bool   `toml:"enabled"`
	At          string `toml:"at"` // "HH:MM" in the calendar zone
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
	MaxDelay    string `toml:"max_delay"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"` // "info" or "debug"
	File  string `toml:"file"`  // empty logs to stderr only
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			CORSOrigins:    []string{"*"},
			RequestTimeout: "30s",
		},
		Calendar: CalendarConfig{
			Timezone: "UTC",
		},
		Tasks: TasksConfig{
			DailyLimit: domain.DefaultDailyTaskLimit,
		},
		Sweep: SweepConfig{
			Enabled:     true,
			At:          "00:00",
			MaxAttempts: 3,
			BaseDelay:   "500ms",
			MaxDelay:    "30s",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(focusHome(), "focus.log"),
		},
	}
}

// LoadConfig reads config from $FOCUS_HOME/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(focusHome(), "config.toml"))
}

// LoadConfigFile reads config from path over the defaults. A missing file
// yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $FOCUS_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(focusHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if _, err := time.ParseDuration(c.API.RequestTimeout); c.API.RequestTimeout != "" && err != nil {
		errs = append(errs, fmt.Errorf("api.request_timeout: %w", err))
	}
	if _, err := timewindow.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calendar.timezone: %w", err))
	}
	if c.Tasks.DailyLimit < 0 {
		errs = append(errs, fmt.Errorf("tasks.daily_limit must not be negative"))
	}
	if _, _, err := scheduler.ParseTimeOfDay(c.Sweep.At); c.Sweep.At != "" && err != nil {
		errs = append(errs, fmt.Errorf("sweep.at: %w", err))
	}
	for name, v := range map[string]string{"sweep.base_delay": c.Sweep.BaseDelay, "sweep.max_delay": c.Sweep.MaxDelay} {
		if _, err := time.ParseDuration(v); v != "" && err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	switch c.Logging.Level {
	case "", "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q: want info or debug", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Location resolves the calendar zone.
func (c Config) Location() (*time.Location, error) {
	return timewindow.LoadLocation(c.Calendar.Timezone)
}

// SweepSettings converts the [sweep] section for the scheduler.
func (c Config) SweepSettings(loc *time.Location) scheduler.Config {
	def := scheduler.DefaultRetryConfig()
	return scheduler.Config{
		At:       c.Sweep.At,
		Location: loc,
		Retry: scheduler.RetryConfig{
			MaxAttempts: c.Sweep.MaxAttempts,
			BaseDelay:   parseDuration(c.Sweep.BaseDelay, def.BaseDelay),
			MaxDelay:    parseDuration(c.Sweep.MaxDelay, def.MaxDelay),
		},
	}
}

// focusHome returns the focus data directory.
func focusHome() string {
	if env := os.Getenv("FOCUS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".focus")
}

// FocusHome is exported for use by other packages.
func FocusHome() string {
	return focusHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
