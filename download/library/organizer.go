package library

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AJMSD/raga/download/catalog"
)

// Organizer places accepted files. Name reservation is serialized so
// concurrent placements never pick the same path.
type Organizer struct {
	root  string
	mu    sync.Mutex
	cover *CoverFetcher

	placeholder    string
	groupThreshold int
}

// Options configures an Organizer.
type Options struct {
	// PlaceholderImage is copied into artist folders created by grouping.
	PlaceholderImage string
	// GroupThreshold is the number of songs by one artist that triggers an
	// artist folder. Zero disables grouping.
	GroupThreshold int
	Cover          *CoverFetcher
}

// NewOrganizer creates an organizer rooted at root.
func NewOrganizer(root string, opts Options) *Organizer {
	if opts.Cover == nil {
		opts.Cover = NewCoverFetcher(nil)
	}
	return &Organizer{
		root:           root,
		cover:          opts.Cover,
		placeholder:    opts.PlaceholderImage,
		groupThreshold: opts.GroupThreshold,
	}
}

// Root returns the destination root.
func (o *Organizer) Root() string { return o.root }

// Target is the folder an entity's tracks are placed into.
type Target struct {
	Mode   Mode
	Entity catalog.Entity
	Dir    string // absolute
}

// Prepare picks and creates the entity folder. An existing folder is reused
// when its marker names the same entity or when it has no marker yet;
// otherwise " (2)", " (3)", ... is appended.
func (o *Organizer) Prepare(mode Mode, entity catalog.Entity) (*Target, error) {
	rel := EntityDir(mode, entity)
	if rel == "" {
		if err := os.MkdirAll(o.root, 0755); err != nil {
			return nil, &PlacementError{Path: o.root, Message: "cannot create destination", Original: err}
		}
		return &Target{Mode: mode, Entity: entity, Dir: o.root}, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	base := filepath.Join(o.root, rel)
	marker := markerFile(mode)
	dir := base
	for n := 2; ; n++ {
		owner, err := readMarker(filepath.Join(dir, marker))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &PlacementError{Path: dir, Message: "cannot read folder marker", Original: err}
		}
		if err != nil || owner == "" || owner == entity.ID() {
			break
		}
		dir = fmt.Sprintf("%s (%d)", base, n)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &PlacementError{Path: dir, Message: "cannot create folder", Original: err}
	}
	if err := os.WriteFile(filepath.Join(dir, marker), []byte(entity.ID()+"\n"), 0644); err != nil {
		return nil, &PlacementError{Path: dir, Message: "cannot write folder marker", Original: err}
	}
	return &Target{Mode: mode, Entity: entity, Dir: dir}, nil
}

// readMarker returns the entity ID stored in a folder marker. A folder that
// exists without a marker reads as unowned.
func readMarker(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(filepath.Dir(path)); statErr == nil {
			return "", nil
		}
	}
	return "", err
}

// UniqueBase returns base, or base plus " (n)", such that no audio file with
// any known extension exists at it.
func UniqueBase(base string) string {
	candidate := base
	for n := 2; taken(candidate); n++ {
		candidate = fmt.Sprintf("%s (%d)", base, n)
	}
	return candidate
}

func taken(base string) bool {
	for _, ext := range AudioExtensions {
		if _, err := os.Lstat(base + ext); err == nil {
			return true
		}
	}
	return false
}

// Place moves the staged file into the target under the layout name for
// track and returns the final path. Existing files are never overwritten.
func (o *Organizer) Place(target *Target, staged string, track *catalog.Track, position int) (string, error) {
	ext := strings.ToLower(filepath.Ext(staged))

	o.mu.Lock()
	defer o.mu.Unlock()

	base := UniqueBase(filepath.Join(target.Dir, TrackBaseName(target.Mode, track, position)))
	dest := base + ext
	if err := moveFile(staged, dest); err != nil {
		return "", &PlacementError{Path: dest, Message: "cannot move staged file", Original: err}
	}
	log.Printf("INFO: track_placed track_id=%s path=%q", track.TrackID, dest)
	return dest, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
