// Package obslog provides the structured logger used across Actifix components.
package obslog

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls logger construction.
type Config struct {
	Level      string // debug, info, warning, error
	Format     string // json, text
	Output     string // stdout, file
	LogsDir    string
	FilePrefix string
}

// New builds a component-scoped logrus logger per cfg.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.FilePrefix == "" {
			cfg.FilePrefix = "actifix"
		}
		dir := cfg.LogsDir
		if dir == "" {
			dir = "logs"
		}
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			logger.Errorf("failed to create logs directory: %v", mkErr)
			logger.SetOutput(os.Stdout)
			break
		}
		path := filepath.Join(dir, cfg.FilePrefix+".log")
		file, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if openErr != nil {
			logger.Errorf("failed to open log file: %v", openErr)
			logger.SetOutput(os.Stdout)
			break
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// NewDefault returns a sane stdout/text/info logger for the named component.
func NewDefault(component string) *logrus.Logger {
	logger := New(Config{Level: "info", Format: "text", Output: "stdout"})
	return logger
}

// Component returns a logger entry tagged with the owning component's name,
// the convention every package in this module follows instead of reaching
// for a package-level global logger.
func Component(base *logrus.Logger, name string) *logrus.Entry {
	return base.WithField("component", name)
}
