package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/internal/manager"
	"gopkg.in/yaml.v3"
)

// Supported backends
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
	BackendSim    = "sim"
)

// Supported output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

var (
	backends = []string{BackendGoBLE, BackendTinyGo, BackendSim}
	formats  = []string{FormatTable, FormatJSON}
)

// Config holds application configuration
type Config struct {
	LogLevel            string        `yaml:"log_level" json:"log_level" default:"warn"`
	Backend             string        `yaml:"backend" json:"backend" default:"goble"`
	ScanTimeout         time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	ScanRestartDelay    time.Duration `yaml:"scan_restart_delay" json:"scan_restart_delay" default:"50ms"`
	SessionRestartDelay time.Duration `yaml:"session_restart_delay" json:"session_restart_delay" default:"50ms"`
	NameFilter          string        `yaml:"name_filter" json:"name_filter"`
	EventBuffer         int           `yaml:"event_buffer" json:"event_buffer" default:"64"`
	OutputFormat        string        `yaml:"output_format" json:"output_format" default:"table"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file on top of the defaults. Keys missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

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

// Validate checks enum fields and timing floors
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if !slices.Contains(backends, c.Backend) {
		errs = append(errs, fmt.Errorf("backend: unsupported value %q (want one of %v)", c.Backend, backends))
	}
	if !slices.Contains(formats, c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output_format: unsupported value %q (want one of %v)", c.OutputFormat, formats))
	}
	if c.ScanRestartDelay < manager.MinQuiescenceDelay {
		errs = append(errs, fmt.Errorf("scan_restart_delay: %v is below the %v minimum", c.ScanRestartDelay, manager.MinQuiescenceDelay))
	}
	if c.SessionRestartDelay < manager.MinQuiescenceDelay {
		errs = append(errs, fmt.Errorf("session_restart_delay: %v is below the %v minimum", c.SessionRestartDelay, manager.MinQuiescenceDelay))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan_timeout: must be positive"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout: must be positive"))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer: must be positive"))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ManagerOptions maps the timing and filter settings onto manager options
func (c *Config) ManagerOptions() *manager.Options {
	opts := manager.DefaultOptions()
	opts.ScanRestartDelay = c.ScanRestartDelay
	opts.SessionRestartDelay = c.SessionRestartDelay
	opts.NameFilter = c.NameFilter
	return opts
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
