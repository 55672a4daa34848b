package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// OutputFormats lists the accepted values of Config.OutputFormat.
var OutputFormats = []string{"table", "json"}

// Config holds application configuration
type Config struct {
	LogLevel        logrus.Level  `yaml:"log_level" json:"log_level" default:"4"`
	ScanTimeout     time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	ScanBuffer      int           `yaml:"scan_buffer" json:"scan_buffer" default:"128"`
	AllowDuplicates bool          `yaml:"allow_duplicates" json:"allow_duplicates" default:"false"`
	HistorySize     uint32        `yaml:"history_size" json:"history_size" default:"256"`
	OutputFormat    string        `yaml:"output_format" json:"output_format" default:"table"` // table, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("unsupported output format %q (expected one of %v)", c.OutputFormat, OutputFormats)
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative")
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative")
	}
	if c.ScanBuffer < 0 {
		return fmt.Errorf("scan_buffer must not be negative")
	}
	if c.HistorySize == 0 {
		return fmt.Errorf("history_size must be > 0")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
