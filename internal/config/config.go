// Package config loads checker configuration from a YAML file. CLI flags
// override file values; file values override defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kestrelrobotics/epcheck/core/check"
)

// Config holds the tunables of the consistency checker and its stores.
type Config struct {
	// Tolerance is the absolute elementwise tolerance for action comparison.
	Tolerance float64 `yaml:"tolerance"`
	// AlignPrefix bounds the cross-stream alignment check.
	AlignPrefix int `yaml:"align_prefix"`
	// PrefixFrames is the per-episode action prefix length for matching.
	PrefixFrames int `yaml:"prefix_frames"`
	// SampleStrategy overrides the relation-dependent sampling default
	// ("quartiles" or "episode-prefix"; empty keeps the default).
	SampleStrategy string `yaml:"sample_strategy"`
	// ReportDB is the report database path.
	ReportDB string `yaml:"report_db"`
	// FingerprintCache is the fingerprint cache path; empty disables it.
	FingerprintCache string `yaml:"fingerprint_cache"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tolerance:    1e-5,
		AlignPrefix:  20,
		PrefixFrames: 10,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// DefaultPath returns the per-user config location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory failed: %w", err)
	}
	return filepath.Join(homeDir, ".epcheck", "config.yaml"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		resolved, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = resolved
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s failed: %w", path, err)
	}
	if cfg.Tolerance <= 0 {
		return cfg, fmt.Errorf("config %s: tolerance must be positive", path)
	}
	if _, err := check.ParseStrategy(cfg.SampleStrategy); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
