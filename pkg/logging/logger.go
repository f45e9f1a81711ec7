// Package logging configures zerolog for the OneRoster client and hands out
// per-component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs every page and attempt.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs endpoint progress and summaries.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries, rate-limit waits and incomplete endpoints.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed pages only.
	LevelError LogLevel = "error"
)

// Component names used with NewLogger.
const (
	ComponentClient     = "oneroster-client"
	ComponentPagination = "pagination"
	ComponentRoster     = "roster"
	ComponentRateLimit  = "ratelimit"
	ComponentCLI        = "oneroster-pull"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr). Standard
	// output is reserved for the dataset.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ValidateLevel reports an error for level names Setup would not recognize.
func ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Each signed attempt (endpoint, offset)
//   - Each page fetched (records, running total)
//   - Rate-limit state updates
//
// Info: pull progress
//   - Total count learned for an endpoint
//   - Endpoint complete, pull finished
//   - Per-endpoint summary at the end of a run
//
// Warn: degraded but continuing
//   - Retry after 429/502
//   - Waiting for a rate-limit window to reset
//   - Endpoint stopped before its total count
//
// Error: a page failed
//   - Non-200 after retries, undecodable body
//   - Configuration or output failure in the CLI
//
// Context Fields:
//   - endpoint: resource path, e.g. /orgs
//   - offset: page offset
//   - status: HTTP status code
//   - records, total, pages: accumulation counters
//   - attempt, backoff: retry state
//   - error_class: transient, client, server, other
