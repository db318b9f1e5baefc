// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fixpoint/config.yaml",
	"/etc/fixpoint/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3002,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Tracker: TrackerConfig{
			Token:          "", // Empty disables auth
			LogFile:        "data/locations.jsonl",
			BodyLimitBytes: 100 << 10, // 100 KiB
		},
		Throttle: ThrottleConfig{
			Window:      time.Minute,
			MaxRequests: 120,
		},
		Stream: StreamConfig{
			HeartbeatInterval: 30 * time.Second,
			SessionBuffer:     64,
		},
		Security: SecurityConfig{
			CORSOrigins:         []string{"*"},
			ReadRateLimitReqs:   1000,
			ReadRateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources (highest priority wins):
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// CORS origins arrive as a comma-separated string from the environment.
	if origins := k.String("security.cors_origins"); origins != "" && !strings.HasPrefix(origins, "[") {
		parts := strings.Split(origins, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if err := k.Set("security.cors_origins", cleaned); err != nil {
			return nil, fmt.Errorf("failed to set cors origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := loadWindowMsOverride(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf paths.
// Well-known tracker variables keep their historical names; everything else
// follows the SECTION_FIELD convention (e.g. SERVER_PORT -> server.port).
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"tracker_token":           "tracker.token",
		"location_log_file":       "tracker.log_file",
		"body_limit_bytes":        "tracker.body_limit_bytes",
		"rate_limit_window_ms":    "", // handled below, needs ms conversion
		"rate_limit_max_requests": "throttle.max_requests",
		"cors_origin":             "security.cors_origins",
		"cors_origins":            "security.cors_origins",
		"log_level":               "logging.level",
		"log_format":              "logging.format",
		"log_caller":              "logging.caller",
	}
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	knownPrefixes := []string{"server_", "tracker_", "throttle_", "stream_", "security_", "logging_"}
	for _, prefix := range knownPrefixes {
		if strings.HasPrefix(key, prefix) {
			section := strings.TrimSuffix(prefix, "_")
			return section + "." + strings.TrimPrefix(key, prefix)
		}
	}

	// Unknown variables are ignored rather than polluting the config map.
	return ""
}

// loadWindowMsOverride applies the historical RATE_LIMIT_WINDOW_MS variable,
// which is expressed in integer milliseconds rather than a Go duration.
func loadWindowMsOverride(cfg *Config) error {
	raw := os.Getenv("RATE_LIMIT_WINDOW_MS")
	if raw == "" {
		return nil
	}
	ms, err := time.ParseDuration(raw + "ms")
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW_MS %q: %w", raw, err)
	}
	if ms <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive, got %q", raw)
	}
	cfg.Throttle.Window = ms
	return nil
}
