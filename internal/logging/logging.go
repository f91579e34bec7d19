// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"ConnSpectra/internal/config"

	log "github.com/sirupsen/logrus"
)

// Setup applies the level and format from cfg to the standard logrus logger.
func Setup(cfg config.LogConfig) error {
	return apply(log.StandardLogger(), cfg, os.Stderr)
}

func apply(logger *log.Logger, cfg config.LogConfig, out io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger.SetLevel(level)
	logger.SetOutput(out)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format '%s'", cfg.Format)
	}
	return nil
}
