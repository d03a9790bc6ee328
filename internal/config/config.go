// Package config loads the engine configuration file.
//
// Example:
//
//	round_timeout: 2s
//	idle_interval: 100ms
//	max_rounds: 1000
//	max_interaction_size: 6
//	search_budget: 20000
//	database: bip.db
//	log_level: debug
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bip/internal/engine"
)

// Config holds engine settings. Zero values mean "use the default".
type Config struct {
	RoundTimeout       Duration `yaml:"round_timeout"`
	IdleInterval       Duration `yaml:"idle_interval"`
	MaxRounds          int64    `yaml:"max_rounds"`
	MaxInteractionSize int      `yaml:"max_interaction_size"`
	SearchBudget       int      `yaml:"search_budget"`
	Database           string   `yaml:"database"`
	LogLevel           string   `yaml:"log_level"`
}

// Duration is a time.Duration read from strings like "250ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"2s\"", node.Line)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		RoundTimeout:       Duration(engine.DefaultRoundTimeout),
		IdleInterval:       Duration(engine.DefaultIdleInterval),
		MaxInteractionSize: engine.DefaultMaxInteractionSize,
		SearchBudget:       engine.DefaultSearchBudget,
		LogLevel:           "info",
	}
}

// Load reads a YAML configuration file on top of Default. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.RoundTimeout < 0 {
		errs = append(errs, errors.New("round_timeout cannot be negative"))
	}
	if c.IdleInterval < 0 {
		errs = append(errs, errors.New("idle_interval cannot be negative"))
	}
	if c.MaxRounds < 0 {
		errs = append(errs, errors.New("max_rounds cannot be negative"))
	}
	if c.MaxInteractionSize < 0 {
		errs = append(errs, errors.New("max_interaction_size cannot be negative"))
	}
	if c.SearchBudget < 0 {
		errs = append(errs, errors.New("search_budget cannot be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EngineOptions converts the configuration to engine options. The database
// is not opened here; callers pass the store with engine.WithStore.
func (c Config) EngineOptions() []engine.EngineOption {
	return []engine.EngineOption{
		engine.WithRoundTimeout(time.Duration(c.RoundTimeout)),
		engine.WithIdleInterval(time.Duration(c.IdleInterval)),
		engine.WithMaxRounds(c.MaxRounds),
		engine.WithMaxInteractionSize(c.MaxInteractionSize),
		engine.WithSearchBudget(c.SearchBudget),
	}
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level %q must be one of debug, info, warn, error", s)
	}
}
