// Package config loads and validates igord's process configuration, the
// way the teacher's internal/config validates cluster.json against a
// compiled JSON Schema before trusting it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EventsConfig selects and parameterizes the events.Publisher driver.
type EventsConfig struct {
	Driver     string `json:"driver"`
	NATSURL    string `json:"nats_url"`
	TCPAddress string `json:"tcp_address"`
}

// ProgramConfig is igord's on-disk configuration file, unmarshaled and
// schema-validated by Load.
type ProgramConfig struct {
	ListenAddress           string       `json:"listen_address"`
	SessionRoot             string       `json:"session_root"`
	HookDir                 string       `json:"hook_dir"`
	WatchdogIntervalSeconds int          `json:"watchdog_interval_seconds"`
	PollIntervalSeconds     int          `json:"poll_interval_seconds"`
	CleanupAgeSeconds       int          `json:"cleanup_age_seconds"`
	MaxCleanedJobs          int          `json:"max_cleaned_jobs"`
	Events                  EventsConfig `json:"events"`
	LogLevel                string       `json:"log_level"`
}

// defaults mirrors spec.md §4.5's default tick cadence and GC
// thresholds (10s poll, 5min cleanup age, 10 max cleaned jobs).
func (c *ProgramConfig) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.WatchdogIntervalSeconds == 0 {
		c.WatchdogIntervalSeconds = 10
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 10
	}
	if c.CleanupAgeSeconds == 0 {
		c.CleanupAgeSeconds = 300
	}
	if c.MaxCleanedJobs == 0 {
		c.MaxCleanedJobs = 10
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// WatchdogInterval, PollInterval and CleanupAge convert the
// integer-seconds fields into time.Duration for callers.
func (c *ProgramConfig) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}

func (c *ProgramConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *ProgramConfig) CleanupAge() time.Duration {
	return time.Duration(c.CleanupAgeSeconds) * time.Second
}

// Load reads path, validates it against schemaJSON and returns a
// defaulted ProgramConfig. A missing or malformed config is a fatal
// startup error at the caller (cmd/igord), not here.
func Load(path string) (*ProgramConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("config %s failed schema validation: %w", path, err)
	}

	var cfg ProgramConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate compiles schemaJSON and checks instance against it, the same
// two-step CompileString/Validate sequence as the teacher's
// internal/config/validate.go.
func Validate(instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("igord-config.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("decode config instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
