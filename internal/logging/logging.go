// Package logging configures the ingester's structured logging (SPEC_FULL.md
// §4.L): a single charmbracelet/log root logger, per-component child
// loggers carved out with .With, and a dedicated rotated log stream for
// future-timestamp rejections so operators can audit clock-skew sources
// separately from the main log.
package logging

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/natefinch/lumberjack"
)

// Config controls the root logger and the future-timestamps side log.
type Config struct {
	Level                  string // "debug", "info", "warn", "error"
	FutureTimestampLogPath string
	Timezone               string // IANA name, e.g. "America/Los_Angeles"; empty means local
}

// loc is the location every logger's timestamps are rendered in.
var loc = time.Local

// Setup applies Config to the package-level default logger used by every
// component logger derived from Component.
func Setup(cfg Config) error {
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("logging: parsing timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	log.SetTimeFunction(func(t time.Time) time.Time { return t.In(loc) })

	if cfg.Level == "" {
		return nil
	}
	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("logging: parsing level %q: %w", cfg.Level, err)
	}
	log.SetLevel(lvl)
	log.SetReportTimestamp(true)
	return nil
}

// Component returns a child logger tagged with the given component name,
// e.g. Component("correlator").
func Component(name string) *log.Logger {
	return log.With("component", name)
}

// RotationConfig controls the future-timestamps log's rotation policy.
type RotationConfig struct {
	MaxSizeMB  int // megabytes per file before rotating
	MaxBackups int // rotated files retained
	MaxAgeDays int // days a rotated file is retained
}

// DefaultRotation is used when a zero-value RotationConfig is supplied.
var DefaultRotation = RotationConfig{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30}

// NewFutureTimestampLogger builds a separate, size-and-age-rotated logger
// dedicated to readings the Timestamp Guard rejects for excessive future
// skew. It never shares a file with the main log, so an operator can tail
// clock-skew incidents across many nodes without wading through everything
// else the ingester logs.
func NewFutureTimestampLogger(path string, rot RotationConfig) *log.Logger {
	if rot == (RotationConfig{}) {
		rot = DefaultRotation
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   true,
	}
	return log.NewWithOptions(rotator, log.Options{
		ReportTimestamp: true,
		TimeFunction:    func(t time.Time) time.Time { return t.In(loc) },
		Prefix:          "future-timestamps",
	})
}
