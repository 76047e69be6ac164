// logger.go - Structured logging for the settlement daemon.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the daemon logger. Output goes to stdout and, when
// a log file is configured, to a size-rotated file as well.
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	writers := []io.Writer{os.Stdout}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger, nil
}

// NewAuditLogger builds the audit trail logger. Every state-changing
// operation is recorded here as one JSON line, rotated by size. Returns
// nil when auditing is not configured.
func NewAuditLogger(cfg *Config) (*logrus.Logger, error) {
	if cfg.AuditLogFile == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.AuditLogFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	audit := logrus.New()
	audit.SetLevel(logrus.InfoLevel)
	audit.SetFormatter(&logrus.JSONFormatter{})
	audit.SetOutput(&lumberjack.Logger{
		Filename:   cfg.AuditLogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})
	return audit, nil
}
