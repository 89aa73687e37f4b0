// Package logging gates the standard logger by level and writes the
// per-run JSON event journal.
//
// Log lines use the "LEVEL: event key=value ..." format through the standard
// log package, so the CLI can redirect them with log.SetOutput.
package logging

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel represents the log level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int32{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

var current atomic.Int32

func init() {
	current.Store(levelRank[LogLevelInfo])
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug, nil
	case "", "INFO":
		return LogLevelInfo, nil
	case "WARN", "WARNING":
		return LogLevelWarn, nil
	case "ERROR":
		return LogLevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// SetLevel sets the minimum level emitted by the helpers below.
func SetLevel(level LogLevel) {
	if rank, ok := levelRank[level]; ok {
		current.Store(rank)
	}
}

// Level returns the current minimum level.
func Level() LogLevel {
	rank := current.Load()
	for level, r := range levelRank {
		if r == rank {
			return level
		}
	}
	return LogLevelInfo
}

// Enabled reports whether level passes the gate.
func Enabled(level LogLevel) bool {
	return levelRank[level] >= current.Load()
}

func logf(level LogLevel, format string, args ...any) {
	if Enabled(level) {
		log.Printf(string(level)+": "+format, args...)
	}
}

// Debugf logs only when the level is DEBUG.
func Debugf(format string, args ...any) { logf(LogLevelDebug, format, args...) }

// Infof logs at INFO.
func Infof(format string, args ...any) { logf(LogLevelInfo, format, args...) }

// Warnf logs at WARN.
func Warnf(format string, args ...any) { logf(LogLevelWarn, format, args...) }

// Errorf logs at ERROR.
func Errorf(format string, args ...any) { logf(LogLevelError, format, args...) }
