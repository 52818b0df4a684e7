// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the bulletin-board service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	yaml "go.yaml.in/yaml/v3"
)

// Store backends selectable through StoreConfig.Backend.
const (
	StoreBackendFile   = "file"
	StoreBackendBadger = "badger"
)

// RateLimitConfig defines the parameters for per-session request rate
// limiting: Burst requests admitted per RefillInterval.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst" envconfig:"RATE_LIMIT_BURST" validate:"min=1"`
	RefillInterval time.Duration `yaml:"refill_interval" envconfig:"RATE_LIMIT_REFILL_INTERVAL" validate:"min=1ms"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"STORE_BACKEND" validate:"oneof=file badger"`
	Dir     string `yaml:"dir" envconfig:"STORE_DIR" validate:"required"`
}

// Config holds the server configuration, including security controls and the
// persistence backend.
type Config struct {
	Port            string          `yaml:"port" envconfig:"SERVER_PORT"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64           `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE" validate:"min=1"`
	LogLevel        string          `yaml:"log_level" envconfig:"LOG_LEVEL"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=1s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Store           StoreConfig     `yaml:"store"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool

	validate = validator.New()
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  1024,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Store: StoreConfig{
			Backend: StoreBackendFile,
			Dir:     "./data",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1024
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendFile
	}

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "./data"
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:            cfg.Port,
		AllowedOrigins:  append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize:  cfg.MaxMessageSize,
		LogLevel:        cfg.LogLevel,
		ShutdownTimeout: cfg.ShutdownTimeout,
		RateLimit:       cfg.RateLimit,
		Store:           cfg.Store,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the effective configuration: defaults, overlaid with the
// YAML file at path (if it exists), overlaid with environment variables, then
// validated. An unreadable file or an invalid final value is an error; the
// server should not start half-configured.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// No file is fine; env and defaults still apply.
		case err != nil:
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %q: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
