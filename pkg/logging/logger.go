// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelTrace logs everything, including per-token limiter waits.
	LevelTrace LogLevel = "trace"

	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Validate reports whether l names a known level.
func (l LogLevel) Validate() error {
	if _, ok := levels[normalize(l)]; !ok {
		return fmt.Errorf("unknown log level %q", string(l))
	}
	return nil
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output. Unknown levels mean info.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service is attached to every line as "service" when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "swapi-ingest",
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

func normalize(l LogLevel) string {
	return strings.ToLower(strings.TrimSpace(string(l)))
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	if lvl, ok := levels[normalize(level)]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// NewLogger creates a logger tagged with component, derived from the
// global logger at call time.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Trace: limiter token waits, page worker lifecycle
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, conditional requests)
//   - Retry backoff scheduling
//   - Batch commits
//
// Info: Normal operation events
//   - Run state transitions
//   - Listing index and page progress
//   - Snapshot names
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent a run
//   - Retry exhaustion for a single URL
//   - Skipped or failed items
//   - Tolerated bad pages
//   - Cache errors (fallback to direct request)
//
// Error: Run failures and configuration errors
//
// Context Fields:
//   - run_id: Ingestion run identifier
//   - state: Orchestrator state
//   - url: Fetched URL
//   - page: Listing page number
//   - attempt: Fetch attempt number
//   - status_code: HTTP status code
//   - error_class: Error classification (client, server, network, decode)
//   - name: Planet name
