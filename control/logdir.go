package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	runLogName    = "run.log"
	eventsLogName = "events.jsonl"
)

// CreateRunDir creates a per-run directory under base (run_<timestamp>_<nanos>/)
// and returns it with the path of its text log.
// Nanosecond suffix avoids collision when multiple runs start in the same second.
func CreateRunDir(base string) (runDir, logPath string, err error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", "", fmt.Errorf("create log base dir: %w", err)
	}
	now := time.Now()
	ts := strings.ReplaceAll(now.Format(time.RFC3339), ":", "-")
	runDir = filepath.Join(base, "run_"+ts+"_"+strconv.FormatInt(now.UnixNano(), 10))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", "", fmt.Errorf("create run dir: %w", err)
	}
	return runDir, filepath.Join(runDir, runLogName), nil
}
