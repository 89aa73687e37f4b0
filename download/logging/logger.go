package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one line of the event journal.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Event     string         `json:"event"`
	RunID     string         `json:"run_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Logger appends JSON lines to a run's event journal.
type Logger struct {
	logPath string
	file    *os.File
	mu      sync.Mutex
	runID   string
	now     func() time.Time
}

// NewLogger opens (or creates) the journal at logPath in append mode.
func NewLogger(logPath, runID string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Logger{logPath: logPath, file: file, runID: runID, now: time.Now}, nil
}

// Path returns the journal path.
func (l *Logger) Path() string { return l.logPath }

// Close closes the journal.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Log writes one entry. Write failures are dropped; the journal must never
// fail a run.
func (l *Logger) Log(level LogLevel, event string, fields map[string]any, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}

	entry := Entry{Timestamp: l.now().UTC(), Level: level, Event: event, RunID: l.runID, Fields: fields}
	if err != nil {
		entry.Error = err.Error()
	}
	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		data, _ = json.Marshal(Entry{Timestamp: entry.Timestamp, Level: level, Event: event, RunID: l.runID, Error: marshalErr.Error()})
	}
	_, _ = l.file.Write(append(data, '\n'))
}

// Info logs an info event.
func (l *Logger) Info(event string, fields map[string]any) {
	l.Log(LogLevelInfo, event, fields, nil)
}

// Warn logs a warning event.
func (l *Logger) Warn(event string, fields map[string]any, err error) {
	l.Log(LogLevelWarn, event, fields, err)
}

// Error logs an error event.
func (l *Logger) Error(event string, fields map[string]any, err error) {
	l.Log(LogLevelError, event, fields, err)
}
