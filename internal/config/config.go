// Package config loads the bridge configuration from a YAML file with
// environment variable overrides, and watches the file for runtime changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full bridge configuration.
type Config struct {
	// Port the HTTP and WebSocket server listens on.
	Port int `yaml:"port"`

	// DataDir holds the WhatsApp device store (SQLite database).
	DataDir string `yaml:"data_dir"`

	// SendTimeout bounds each individual outbound send.
	SendTimeout Duration `yaml:"send_timeout"`

	// SendRate is the outbound message pacing in messages per second.
	SendRate float64 `yaml:"send_rate"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json

	// Verbose enables the underlying WhatsApp client's debug output.
	Verbose bool `yaml:"verbose"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Port:        3001,
		DataDir:     filepath.Join(home, ".wabridge"),
		SendTimeout: Duration(30 * time.Second),
		SendRate:    1.0,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env is a valid setup; no file required.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = Duration(30 * time.Second)
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 1.0
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. The bare PORT
// variable is honored for compatibility with existing deployments.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WABRIDGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		} else {
			slog.Warn("ignoring invalid WABRIDGE_PORT", "value", v)
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("WABRIDGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WABRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// SetupLogging configures the process-wide slog default from the config.
func SetupLogging(cfg *Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wabridge.yaml"
	}
	return filepath.Join(home, ".wabridge", "wabridge.yaml")
}
