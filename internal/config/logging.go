package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the one process-wide logger, writing to cfg.ErrorLog
// (or stderr when unset) with logrus's JSON formatter, matching
// SPEC_FULL.md's ambient-logging decision: the logger is carried as a
// field through net threads/worker factory/cache/proxy pool, never a
// package global, so that it stays part of the read-only startup config
// spec.md §9 describes rather than mutable process state.
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})

	if cfg.ErrorLog == "" {
		log.SetOutput(os.Stderr)
		return log, nil
	}

	f, err := os.OpenFile(cfg.ErrorLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return log, nil
}
