// Package logging builds the slog JSON logger shared by the binaries.
// The service logs to stdout; the terminal viewer owns the screen, so it
// logs to a size-rotated file instead.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level and sink.
type Config struct {
	Level string // debug | info | warn | error; default info

	// File, when set, sends output to a rotating log file instead of
	// stdout. MaxSizeMB and MaxBackups tune rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel maps a level name onto a slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// New returns a JSON logger for cfg and a closer for its sink. An invalid
// level falls back to info and is reported through the returned logger.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, levelErr := ParseLevel(cfg.Level)

	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		if lj.MaxSize <= 0 {
			lj.MaxSize = 32 // MB
		}
		if lj.MaxBackups <= 0 {
			lj.MaxBackups = 1
		}
		w, closer = lj, lj
	}

	logger := NewWithWriter(w, level)
	if levelErr != nil {
		logger.Warn("using default log level", "error", levelErr)
	}
	return logger, closer, nil
}

// NewWithWriter returns a JSON logger writing to w at level.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
