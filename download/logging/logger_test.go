package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"", LogLevelInfo, false},
		{"Warning", LogLevelWarn, false},
		{"ERROR", LogLevelError, false},
		{"verbose", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	flags := log.Flags()
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
		SetLevel(LogLevelInfo)
	}()

	SetLevel(LogLevelInfo)
	Debugf("hidden key=%d", 1)
	Infof("shown key=%d", 2)
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("DEBUG line emitted at INFO level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "INFO: shown key=2") {
		t.Errorf("log output = %q, want INFO line", buf.String())
	}

	SetLevel(LogLevelDebug)
	if Level() != LogLevelDebug {
		t.Errorf("Level() = %q, want DEBUG", Level())
	}
	Debugf("visible")
	if !strings.Contains(buf.String(), "DEBUG: visible") {
		t.Errorf("log output = %q, want DEBUG line", buf.String())
	}

	SetLevel(LogLevelError)
	if Enabled(LogLevelWarn) {
		t.Error("Enabled(WARN) = true at ERROR level")
	}
}

func TestLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "events.jsonl")
	logger, err := NewLogger(path, "run-1")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	logger.Info("track_accepted", map[string]any{"track_id": "t1"})
	logger.Error("track_failed", map[string]any{"track_id": "t2"}, errors.New("boom"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	logger.Info("after_close", nil)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Event != "track_accepted" || entries[0].RunID != "run-1" || entries[0].Fields["track_id"] != "t1" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Level != LogLevelError || entries[1].Error != "boom" {
		t.Errorf("entries[1] = %+v, want ERROR with boom", entries[1])
	}
}
