// Package logger wraps a single process-wide charmbracelet/log logger,
// shared by cmd/pgclient, cmd/pgserver, and cmd/pgproxy, and by every
// connection a role package (internal/client, internal/backend,
// internal/proxy) opens underneath them.
package logger

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

var defaultLogger *log.Logger

func init() {
	defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}

// SetLevel sets the log level. An unrecognised level leaves the current
// level in place rather than silently defaulting, so a typo in
// log.level surfaces as "nothing changed" instead of "everything logs".
func SetLevel(level string) {
	switch level {
	case "debug":
		defaultLogger.SetLevel(log.DebugLevel)
	case "info":
		defaultLogger.SetLevel(log.InfoLevel)
	case "warn":
		defaultLogger.SetLevel(log.WarnLevel)
	case "error":
		defaultLogger.SetLevel(log.ErrorLevel)
	}
}

// SetFormat switches between human-readable text output (the charmlog
// default) and newline-delimited JSON, matching config.LogConfig.Format
// ("text" or "json"). A connection's role/remote-address fields added
// via With survive the switch either way, since both formatters render
// whatever key-value pairs the logger carries.
func SetFormat(format string) {
	switch format {
	case "json":
		defaultLogger.SetFormatter(log.JSONFormatter)
	default:
		defaultLogger.SetFormatter(log.TextFormatter)
	}
}

// Debug logs at the "debug" level
func Debug(msg string, keyvals ...interface{}) {
	defaultLogger.Debug(msg, keyvals...)
}

// Info logs at the "info" level
func Info(msg string, keyvals ...interface{}) {
	defaultLogger.Info(msg, keyvals...)
}

// Warn logs at the "warn" level
func Warn(msg string, keyvals ...interface{}) {
	defaultLogger.Warn(msg, keyvals...)
}

// Error logs at the "error" level
func Error(msg string, keyvals ...interface{}) {
	defaultLogger.Error(msg, keyvals...)
}

// Fatal logs and exits
func Fatal(msg string, keyvals ...interface{}) {
	defaultLogger.Fatal(msg, keyvals...)
}

// With returns a logger scoped to additional context — a connection's
// role and remote address, typically, so every line it logs carries
// both without repeating them at each call site.
func With(keyvals ...interface{}) *log.Logger {
	return defaultLogger.With(keyvals...)
}
