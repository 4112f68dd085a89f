// Package logger provides the leveled logging interface used across the
// conversion pipeline, with stdout, stderr and no-op implementations.
package logger

import "strings"

type LogLevel int

const (
	// LogDebug - DEBUG log level
	LogDebug LogLevel = iota

	// LogInfo - INFO log level
	LogInfo

	// LogError - ERROR log level (does not call os.Exit!)
	LogError
)

var logLevelPrefix = map[LogLevel]string{
	LogDebug: "DEBUG",
	LogInfo:  "INFO",
	LogError: "ERROR",
}

type ILogger interface {
	Printf(level LogLevel, format string, a ...interface{})
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

// ParseLogLevel maps "debug", "info" or "error" to a LogLevel, defaulting to LogInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug
	case "error":
		return LogError
	}
	return LogInfo
}

// New returns a logger writing to stdout at the given level, or a NullLogger when quiet.
func New(level LogLevel, quiet bool) ILogger {
	if quiet {
		return &NullLogger{}
	}
	return &StdOutLogger{logLevel: level}
}

// OrNull returns l, or a NullLogger if l is nil.
func OrNull(l ILogger) ILogger {
	if l == nil {
		return &NullLogger{}
	}
	return l
}
