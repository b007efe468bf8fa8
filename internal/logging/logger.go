package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	debugEnabled = os.Getenv("DEBUG") == "true"

	mu   sync.RWMutex
	root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
)

// Config controls the process-wide logger
type Config struct {
	Level string    // debug, info, warn, error
	JSON  bool      // structured JSON instead of console output
	Out   io.Writer // defaults to stderr
}

// Setup replaces the root logger. Call once from main before creating components.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	level := ParseLevel(cfg.Level)
	if debugEnabled {
		level = zerolog.DebugLevel
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()

	mu.Lock()
	root = l
	mu.Unlock()
	return l
}

// ParseLevel maps a config string to a zerolog level (info when unknown)
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// For returns a logger scoped to a subsystem
func For(subsystem string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", subsystem).Logger()
}

// Nop returns a disabled logger, handy for tests
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	l := For(subsystem)
	l.Info().Msgf(format, args...)
}

// Debug logs a debug message (only shown at debug level or DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	l := For(subsystem)
	l.Debug().Msgf(format, args...)
}

// Warn logs a warning
func Warn(subsystem, format string, args ...any) {
	l := For(subsystem)
	l.Warn().Msgf(format, args...)
}

// Error logs an error with its cause
func Error(subsystem string, err error, format string, args ...any) {
	l := For(subsystem)
	l.Error().Err(err).Msgf(format, args...)
}

// Truncate truncates a string to maxLen and adds ellipsis
func Truncate(s string, maxLen int) string {
	// Replace newlines with spaces for one-line logs
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
