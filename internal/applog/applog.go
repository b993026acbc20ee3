// Package applog builds the two logging sinks the binary uses: a console
// sink for CLI subcommands, and a file sink for the long-running server that
// must never write to stdio while the MCP transport owns it.
package applog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	logPathEnv  = "SOURCE_FAST_LOG_PATH"
	logLevelEnv = "SOURCE_FAST_LOG_LEVEL"
)

// CLI returns a logger writing to stderr through zerolog's console writer,
// for the index/search/search-file subcommands.
func CLI() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(levelFromEnv()).With().Timestamp().Logger()
}

// Server returns the server's logging sink. If SOURCE_FAST_LOG_PATH is unset,
// empty, or not openable for append, it returns zerolog.Nop() so that
// nothing touches stdio while stdin/stdout carry the MCP protocol. The
// returned close func flushes and closes the underlying file, if any.
func Server() (zerolog.Logger, func() error) {
	path := strings.TrimSpace(os.Getenv(logPathEnv))
	if path == "" {
		return zerolog.Nop(), func() error { return nil }
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), func() error { return nil }
	}

	logger := zerolog.New(f).Level(levelFromEnv()).With().Timestamp().Logger()
	return logger, f.Close
}

func levelFromEnv() zerolog.Level {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(logLevelEnv)))
	if raw == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
