// Package config provides configuration management for the wekeo-mosaic tool.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	WEkEO    WEkEOConfig    `envPrefix:"WEKEO_"`
	DEIMS    DEIMSConfig    `envPrefix:"DEIMS_"`
	Pipeline PipelineConfig `envPrefix:"PIPELINE_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
}

// WEkEOConfig contains HDA broker client configuration.
type WEkEOConfig struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://gateway.prod.wekeo2.eu/hda-broker/api/v1"`
	User     string        `env:"USER" envDefault:""`
	Password string        `env:"PASSWORD" envDefault:""`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"5m"`
	PageSize int           `env:"PAGE_SIZE" envDefault:"200"`
	// HDARC overrides the credentials file location (defaults to ~/.hdarc)
	HDARC string `env:"HDARC" envDefault:""`
}

// HasCredentials reports whether both user and password were configured.
func (w WEkEOConfig) HasCredentials() bool {
	return w.User != "" && w.Password != ""
}

// DEIMSConfig contains DEIMS-SDR boundary service configuration.
type DEIMSConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://deims.org"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// PipelineConfig contains defaults for pipeline runs.
type PipelineConfig struct {
	WorkDir     string `env:"WORK_DIR" envDefault:"pyhda"`
	DatasetsDir string `env:"DATASETS_DIR" envDefault:""`
	Quiet       bool   `env:"QUIET" envDefault:"false"`
}

// ServerConfig contains results server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// RunTimeout bounds runs started through POST /runs
	RunTimeout time.Duration `env:"RUN_TIMEOUT" envDefault:"2h"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate WEkEO config
	if c.WEkEO.BaseURL == "" {
		return fmt.Errorf("WEkEO base URL is required")
	}

	if c.WEkEO.Timeout <= 0 {
		return fmt.Errorf("WEkEO timeout must be positive, got %s", c.WEkEO.Timeout)
	}

	if c.WEkEO.PageSize < 1 {
		return fmt.Errorf("WEkEO page size must be at least 1, got %d", c.WEkEO.PageSize)
	}

	if (c.WEkEO.User == "") != (c.WEkEO.Password == "") {
		return fmt.Errorf("WEkEO user and password must be set together")
	}

	// Validate DEIMS config
	if c.DEIMS.BaseURL == "" {
		return fmt.Errorf("DEIMS base URL is required")
	}

	if c.DEIMS.Timeout <= 0 {
		return fmt.Errorf("DEIMS timeout must be positive, got %s", c.DEIMS.Timeout)
	}

	// Validate pipeline config
	if c.Pipeline.WorkDir == "" {
		return fmt.Errorf("pipeline work dir is required")
	}

	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Server.RunTimeout <= 0 {
		return fmt.Errorf("server run timeout must be positive, got %s", c.Server.RunTimeout)
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("log level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text', got %q", c.Logging.Format)
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
