package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ttyflow/backend/internal/flow"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Engine    EngineConfig
	Session   SessionConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// EngineConfig holds flow-control engine configuration applied to every
// session stream.
type EngineConfig struct {
	BufferMaxLines       uint32  `envconfig:"BUFFER_MAX_LINES" default:"10000"`
	BufferTrimThreshold  float64 `envconfig:"BUFFER_TRIM_THRESHOLD" default:"0.8"`
	BufferTrimLines      uint32  `envconfig:"BUFFER_TRIM_LINES" default:"1000"`
	ThrottleDebounceMs   int     `envconfig:"THROTTLE_DEBOUNCE_MS" default:"16"`
	ThrottleMaxChunkSize int     `envconfig:"THROTTLE_MAX_CHUNK_SIZE" default:"1000"`
	ThrottleHighVolume   int     `envconfig:"THROTTLE_HIGH_VOLUME" default:"100"`
	MemoryMaxMB          float64 `envconfig:"MEMORY_MAX_MB" default:"100"`
	MemoryWarning        float64 `envconfig:"MEMORY_WARNING_THRESHOLD" default:"0.8"`
	Debug                bool    `envconfig:"ENGINE_DEBUG" default:"false"`
}

// SessionConfig holds PTY session configuration.
type SessionConfig struct {
	// DefaultShell overrides platform shell resolution when set.
	DefaultShell string `envconfig:"DEFAULT_SHELL" default:""`
	// BacklogBytes bounds output retained for a session before a renderer
	// attaches.
	BacklogBytes int `envconfig:"SESSION_BACKLOG_BYTES" default:"262144"`
}

// Flow converts the env-bound engine settings into a flow.Config.
func (e EngineConfig) Flow() flow.Config {
	return flow.Config{
		Buffer: flow.BufferConfig{
			MaxLines:      e.BufferMaxLines,
			TrimThreshold: e.BufferTrimThreshold,
			TrimLines:     e.BufferTrimLines,
		},
		Throttle: flow.ThrottleConfig{
			Debounce:            time.Duration(e.ThrottleDebounceMs) * time.Millisecond,
			MaxChunkSize:        e.ThrottleMaxChunkSize,
			HighVolumeThreshold: e.ThrottleHighVolume,
		},
		Memory: flow.MemoryConfig{
			MaxMemoryMB:      e.MemoryMaxMB,
			WarningThreshold: e.MemoryWarning,
		},
		Debug: e.Debug,
	}
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Engine.Flow().Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Engine: EngineConfig{
			BufferMaxLines:       10000,
			BufferTrimThreshold:  0.8,
			BufferTrimLines:      1000,
			ThrottleDebounceMs:   16,
			ThrottleMaxChunkSize: 1000,
			ThrottleHighVolume:   100,
			MemoryMaxMB:          100,
			MemoryWarning:        0.8,
		},
		Session: SessionConfig{
			BacklogBytes: 262144,
		},
	}
}
