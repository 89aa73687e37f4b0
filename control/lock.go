package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName lives in the destination's state directory next to the
// history database.
const lockFileName = "raga.lock"

var errLocked = errors.New("another raga process is using this destination")

// destinationLock serializes commands that modify one destination tree.
type destinationLock struct {
	path string
	lock *flock.Flock
}

// acquireLock takes the advisory lock for dest without blocking.
func acquireLock(dest string) (*destinationLock, error) {
	dir := filepath.Join(dest, ".raga")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	path := filepath.Join(dir, lockFileName)
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errLocked, dest)
	}
	return &destinationLock{path: path, lock: l}, nil
}

// Release unlocks. The lock file is left in place.
func (d *destinationLock) Release() {
	if err := d.lock.Unlock(); err != nil {
		log.Printf("WARN: lock_release_failed path=%q error=%v", d.path, err)
	}
}

// lockDestination maps lock failures to exit codes.
func lockDestination(dest string) (*destinationLock, error) {
	lock, err := acquireLock(dest)
	if errors.Is(err, errLocked) {
		return nil, exitWith(ExitLocked, err)
	}
	if err != nil {
		return nil, exitWith(ExitFilesystem, err)
	}
	return lock, nil
}
