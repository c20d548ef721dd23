package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blelink/pkg/config"
)

// loadConfig builds the effective configuration: defaults, then the --config
// file, then global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}

	// --log-level takes precedence over --verbose
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
		}
		cfg.LogLevel = level
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}

	return cfg, nil
}

// configureLogger creates the command logger. Log lines go to the command's
// stderr so they never mix with table or JSON output.
func configureLogger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger
}
