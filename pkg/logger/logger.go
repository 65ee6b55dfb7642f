// Package logger provides the package-level structured logger the driver
// uses for protocol downgrades, retry exhaustion, and rate-limiter
// refresh failures (SPEC_FULL.md AMBIENT STACK "Logging"). Adapted from
// the teacher's pkg/logger/logger.go: a lazily-initialized *slog.Logger,
// level selectable via an env var, text handler to stdout by default.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once sync.Once
	log  *slog.Logger
)

// EnvLevelVar is the environment variable that selects the log level,
// named for this driver rather than the teacher's server (SPEC_FULL.md:
// "PROGRESSDB_NOSQL_LOG_LEVEL-style env var").
const EnvLevelVar = "PROGRESSDB_NOSQL_LOG_LEVEL"

// Init installs the package logger. Safe to call multiple times; only the
// first call takes effect, matching the teacher's one-shot Init idiom.
func Init() {
	once.Do(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelFromEnv()}))
	})
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLevelVar))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log returns the package logger, initializing it with defaults on first
// use if the host never called Init explicitly.
func Log() *slog.Logger {
	Init()
	return log
}

// SetLogger overrides the package logger, for callers that want a
// differently configured slog.Logger (e.g. JSON handler, custom sink).
func SetLogger(l *slog.Logger) {
	once.Do(func() {})
	log = l
}
