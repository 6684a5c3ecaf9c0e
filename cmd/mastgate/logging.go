package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/mastgate/pkg/config"
)

// loadConfig reads --config and applies --log-level on top of it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", level)
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

// configureLogger builds the command logger. Without an explicit --log-level
// the one-shot commands stay quiet, so only their output reaches the terminal.
func configureLogger(cmd *cobra.Command, cfg *config.Config, quiet bool) *logrus.Logger {
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	if quiet && !cmd.Flags().Changed("log-level") {
		logger.SetLevel(logrus.PanicLevel)
	}
	return logger
}
