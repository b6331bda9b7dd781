// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stderr
	format           = "json"
	log              = build()
)

func build() zerolog.Logger {
	w := out
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Init initializes the logger
func Init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// SetOutput sets the output for all log levels
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	out = w
	log = build()
}

// SetFormat selects json or console output
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()

	format = strings.ToLower(f)
	log = build()
}

// SetLevel sets the log level
func SetLevel(levelStr string) {
	switch strings.ToLower(levelStr) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "disabled", "off":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debug().Msgf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Info().Msgf(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Warn().Msgf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Error().Msgf(format, v...)
}
