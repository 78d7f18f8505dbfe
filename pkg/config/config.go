// Package config loads the CLI and transport settings from an optional YAML
// file, then applies FORMENGINE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formengine/pkg/clientstate"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORMENGINE_"

// Config is the full runtime configuration.
type Config struct {
	API      APIConfig   `yaml:"api"`
	State    StateConfig `yaml:"state"`
	Log      LogConfig   `yaml:"log"`
	Language string      `yaml:"language"`
}

// APIConfig configures the HTTP transport.
type APIConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	Key       string        `yaml:"key"`
	KeyHeader string        `yaml:"keyHeader"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StateConfig locates the client state file.
type StateConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the slog handler built by Logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Option customises Load.
type Option func(*loader)

type loader struct {
	lookup func(string) (string, bool)
}

// WithLookupEnv replaces os.LookupEnv, mainly for tests.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(l *loader) {
		if lookup != nil {
			l.lookup = lookup
		}
	}
}

// Default returns the built-in configuration.
func Default() Config {
	statePath := "formengine-state.json"
	if dir, err := os.UserConfigDir(); err == nil {
		statePath = filepath.Join(dir, "formengine", "state.json")
	}
	return Config{
		API:      APIConfig{Timeout: 30 * time.Second},
		State:    StateConfig{Path: statePath},
		Log:      LogConfig{Level: "info", Format: "text"},
		Language: "sq",
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string, options ...Option) (Config, error) {
	l := &loader{lookup: os.LookupEnv}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(l)
	}

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"API_BASE_URL":   &cfg.API.BaseURL,
		"API_KEY":        &cfg.API.Key,
		"API_KEY_HEADER": &cfg.API.KeyHeader,
		"STATE_PATH":     &cfg.State.Path,
		"LOG_LEVEL":      &cfg.Log.Level,
		"LOG_FORMAT":     &cfg.Log.Format,
		"LANGUAGE":       &cfg.Language,
	}
	for name, target := range strs {
		if value, ok := l.lookup(EnvPrefix + name); ok {
			*target = strings.TrimSpace(value)
		}
	}
	if value, ok := l.lookup(EnvPrefix + "API_TIMEOUT"); ok {
		timeout, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: %sAPI_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.API.Timeout = timeout
	}
	return nil
}

// Validate checks the values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log format %q", c.Log.Format))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("config: api timeout must not be negative"))
	}
	if _, err := c.Lang(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.State.Path) == "" {
		errs = append(errs, errors.New("config: state path is required"))
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level the way slog does ("debug", "INFO+2", ...).
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	raw := strings.TrimSpace(c.Log.Level)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}

// Lang returns the closest supported UI language.
func (c Config) Lang() (language.Tag, error) {
	tag, err := clientstate.ParseLanguage(c.Language)
	if err != nil {
		return language.Und, fmt.Errorf("config: %w", err)
	}
	return tag, nil
}

// Logger builds a slog logger writing to w with the configured level and
// format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
