// Package config provides configuration management for form_tail.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ajsharma/form_tail/internal/tracking"
)

// Version is the current version of form_tail.
// This is set at build time via ldflags.
var Version = "dev"

// Environment variables read by ApplyEnv.
const (
	EnvMeasurementID = "FORM_TAIL_GA_MEASUREMENT_ID"
	EnvAPISecret     = "FORM_TAIL_GA_API_SECRET"
)

// Config holds all configuration options for form_tail.
type Config struct {
	// Connection
	ChromePort string `yaml:"chrome_port"`
	AutoLaunch bool   `yaml:"auto_launch"`
	StartURL   string `yaml:"start_url"`

	// Output
	OutputDir     string        `yaml:"output_dir"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`

	// Privacy
	Redact bool `yaml:"redact"`

	// Tracking
	SubmitWindow     time.Duration `yaml:"submit_window"`
	SuccessWindow    time.Duration `yaml:"success_window"`
	TransitionMode   string        `yaml:"transition_mode"`
	RescanInterval   time.Duration `yaml:"rescan_interval"`
	EndpointPatterns []string      `yaml:"endpoint_patterns"`

	// Sinks
	EnableFileSink   bool   `yaml:"enable_file_sink"`
	EnableStdoutSink bool   `yaml:"enable_stdout_sink"`
	DatabasePath     string `yaml:"database_path"`
	QueueSize        int    `yaml:"queue_size"`

	// GA4 Measurement Protocol
	MeasurementID string `yaml:"measurement_id"`
	APISecret     string `yaml:"api_secret"`
	GADebug       bool   `yaml:"ga_debug"`

	// Local server
	ServeAddr string `yaml:"serve_addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		// Connection
		ChromePort: "9222",
		AutoLaunch: false,

		// Output
		OutputDir:     "./logs",
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    8 * 1024, // 8 KB

		// Privacy
		Redact: true,

		// Tracking
		SubmitWindow:     tracking.DefaultSubmitWindow,
		SuccessWindow:    tracking.DefaultSuccessWindow,
		TransitionMode:   string(tracking.TransitionDiff),
		RescanInterval:   2 * time.Second,
		EndpointPatterns: append([]string(nil), tracking.DefaultEndpointPatterns...),

		// Sinks
		EnableFileSink:   true,
		EnableStdoutSink: false,
		DatabasePath:     "",
		QueueSize:        256,

		// Local server
		ServeAddr: "127.0.0.1:8089",
	}
}

// LoadFromFile reads a YAML config file. Keys missing from the file keep
// their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// copies GA4 credentials from it. Values already set in the config win.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if c.MeasurementID == "" {
		c.MeasurementID = os.Getenv(EnvMeasurementID)
	}
	if c.APISecret == "" {
		c.APISecret = os.Getenv(EnvAPISecret)
	}
	return nil
}

// GAEnabled reports whether GA4 forwarding is configured.
func (c *Config) GAEnabled() bool {
	return c.MeasurementID != "" && c.APISecret != ""
}

// Mode returns the parsed transition mode.
func (c *Config) Mode() (tracking.TransitionMode, error) {
	return tracking.ParseTransitionMode(c.TransitionMode)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ChromePort == "" {
		return errors.New("chrome port must not be empty")
	}
	if c.EnableFileSink && c.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}
	if c.BufferSize < 1024 {
		return fmt.Errorf("buffer size must be at least 1024 bytes, got %d", c.BufferSize)
	}
	if c.SubmitWindow <= 0 || c.SuccessWindow <= 0 {
		return errors.New("dedup windows must be positive")
	}
	if c.RescanInterval < 0 {
		return errors.New("rescan interval must not be negative")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if (c.MeasurementID == "") != (c.APISecret == "") {
		return errors.New("measurement id and api secret must be set together")
	}
	return nil
}
