// Fixpoint - Real-Time GPS Tracking Ingestion and Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fixpoint

// Package config loads Fixpoint configuration via Koanf v2 with layered
// sources: built-in defaults, an optional YAML config file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/fixpoint/internal/validation"
)

// Config is the root configuration for the Fixpoint server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Tracker  TrackerConfig  `koanf:"tracker"`
	Throttle ThrottleConfig `koanf:"throttle"`
	Stream   StreamConfig   `koanf:"stream"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// TrackerConfig holds device ingestion settings.
type TrackerConfig struct {
	// Token is the shared secret the device must present in the
	// X-Tracker-Token header. Empty disables authentication.
	Token string `koanf:"token"`

	// LogFile is the append-only JSONL location log path.
	LogFile string `koanf:"log_file" validate:"required"`

	// BodyLimitBytes caps the ingestion request body size.
	BodyLimitBytes int64 `koanf:"body_limit_bytes" validate:"gt=0"`
}

// ThrottleConfig holds ingestion admission control settings.
// The window is fixed (not truly sliding); see internal/throttle.
type ThrottleConfig struct {
	Window      time.Duration `koanf:"window" validate:"gt=0"`
	MaxRequests int           `koanf:"max_requests" validate:"min=1"`
}

// StreamConfig holds push-subscriber settings shared by the SSE and
// WebSocket transports.
type StreamConfig struct {
	// HeartbeatInterval is how often a heartbeat event is published to keep
	// intermediaries from closing idle push channels.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`

	// SessionBuffer is the per-subscriber send queue depth. A subscriber
	// that falls this far behind is dropped rather than blocking fan-out.
	// The minimum of 2 covers the subscribe-time preload (connection
	// confirmation plus snapshot).
	SessionBuffer int `koanf:"session_buffer" validate:"min=2"`
}

// SecurityConfig holds cross-origin and read-endpoint rate limit settings.
type SecurityConfig struct {
	// CORSOrigins is the allowed origin list. ["*"] allows any origin.
	CORSOrigins []string `koanf:"cors_origins"`

	// ReadRateLimitReqs/ReadRateLimitWindow bound the read and health
	// endpoints (httprate); ingestion uses the throttle settings above.
	ReadRateLimitReqs   int           `koanf:"read_rate_limit_reqs" validate:"min=1"`
	ReadRateLimitWindow time.Duration `koanf:"read_rate_limit_window" validate:"gt=0"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
