package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/AJMSD/raga/download/logging"
	"github.com/AJMSD/raga/download/orchestrator"
)

// LogTeeWriter writes log output to a file and forwards complete WARN and
// ERROR lines to a channel for the TUI. Forwarding never blocks.
type LogTeeWriter struct {
	file   *os.File
	alerts chan<- string
	mu     sync.Mutex
	buf    []byte
}

// NewLogTeeWriter opens logPath for appending. alerts may be nil.
func NewLogTeeWriter(logPath string, alerts chan<- string) (*LogTeeWriter, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &LogTeeWriter{file: f, alerts: alerts}, nil
}

// Write implements io.Writer.
func (w *LogTeeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	if err != nil || w.alerts == nil {
		return n, err
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if isAlert(line) {
			select {
			case w.alerts <- line:
			default:
			}
		}
	}
	return n, nil
}

func isAlert(line string) bool {
	return strings.Contains(line, "ERROR:") || strings.Contains(line, "WARN:")
}

// Close closes the underlying file.
func (w *LogTeeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// RedirectLogToFile redirects the standard log output to w and returns a restore func.
func RedirectLogToFile(w io.Writer) (restore func()) {
	oldFlags := log.Flags()
	oldPrefix := log.Prefix()
	oldOut := log.Writer()
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("")
	return func() {
		log.SetOutput(oldOut)
		log.SetFlags(oldFlags)
		log.SetPrefix(oldPrefix)
	}
}

// journalObserver records orchestrator events in the run's JSON journal.
func journalObserver(journal *logging.Logger) orchestrator.Observer {
	return func(e orchestrator.Event) {
		fields := map[string]any{
			"index":     e.Index + 1,
			"reference": e.Ref.Raw,
			"kind":      string(e.Ref.Kind),
		}
		if e.Entity != nil {
			fields["entity_id"] = e.Entity.ID()
			fields["title"] = e.Entity.Title()
		}
		switch e.Kind {
		case orchestrator.EventUnitStart:
			fields["total"] = e.Total
			journal.Info("unit_start", fields)
		case orchestrator.EventUnitResolved:
			fields["tracks"] = e.Total
			journal.Info("unit_resolved", fields)
		case orchestrator.EventUnitSkipped:
			journal.Warn("unit_skipped", fields, e.Err)
		case orchestrator.EventTrackState:
			if e.Track != nil {
				fields["track_id"] = e.Track.TrackID
				fields["track"] = e.Track.Name
			}
			fields["state"] = string(e.State)
			if e.Path != "" {
				fields["path"] = e.Path
			}
			switch e.State {
			case orchestrator.StateFailed:
				journal.Error("track_failed", fields, e.Err)
			case orchestrator.StateAccepted, orchestrator.StateDuplicate:
				journal.Info("track_"+string(e.State), fields)
			}
		case orchestrator.EventUnitDone:
			journal.Info("unit_done", fields)
		}
	}
}
