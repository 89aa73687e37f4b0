// Package maintenance cleans up a destination tree: it removes the audio of
// unwanted artists, normalizes album art names, drops folders left empty and
// prunes cache entries for files that are gone.
package maintenance

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/AJMSD/raga/download/hashcache"
	"github.com/AJMSD/raga/download/library"
	"github.com/AJMSD/raga/download/metadata"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif"}

// Files that never keep a folder alive.
var disposableFiles = map[string]bool{
	"thumbs.db":                                  true,
	"desktop.ini":                                true,
	".ds_store":                                  true,
	strings.ToLower(library.CoverFileName):       true,
	strings.ToLower(library.AlbumMarkerFile):     true,
	strings.ToLower(library.PlaylistMarkerFile):  true,
	strings.ToLower(library.PlaceholderFileName): true,
}

// Cache is the part of the dedup cache maintenance touches.
type Cache interface {
	Forget(path string) error
	Prune(dryRun bool) ([]string, error)
}

// Options selects what a prune pass does.
type Options struct {
	Artists []string
	DryRun  bool
}

// Report summarizes a prune pass. With DryRun the counts are what would
// have happened.
type Report struct {
	Root           string
	DryRun         bool
	RemovedFiles   []string
	PerArtist      map[string]int
	Artists        []string // input order, for display
	RenamedArt     int
	SkippedArt     int // album art left alone because a cover already exists
	RemovedFolders int
	PrunedEntries  int
	Errors         []string
}

// Pruner runs maintenance over one destination root.
type Pruner struct {
	root        string
	cache       Cache
	readArtists func(path string) ([]string, error)
}

// New creates a pruner. cache may be nil.
func New(root string, cache Cache) *Pruner {
	return &Pruner{root: root, cache: cache, readArtists: metadata.ReadArtists}
}

// Run performs the pass: album art renames, artist removal, empty folder
// cleanup, then cache pruning.
func (p *Pruner) Run(ctx context.Context, opts Options) (*Report, error) {
	info, err := os.Stat(p.root)
	if err != nil || !info.IsDir() {
		return nil, &os.PathError{Op: "prune", Path: p.root, Err: fs.ErrNotExist}
	}

	report := &Report{
		Root:      p.root,
		DryRun:    opts.DryRun,
		PerArtist: make(map[string]int),
		Artists:   opts.Artists,
	}

	if err := p.renameAlbumArt(ctx, report); err != nil {
		return report, err
	}
	if len(opts.Artists) > 0 {
		if err := p.removeArtists(ctx, buildIndex(opts.Artists), report); err != nil {
			return report, err
		}
	}
	if err := p.removeEmptyFolders(ctx, report); err != nil {
		return report, err
	}

	if p.cache != nil {
		pruned, err := p.cache.Prune(opts.DryRun)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
		report.PrunedEntries = len(pruned)
	}
	log.Printf("INFO: prune_complete root=%q removed_files=%d renamed_art=%d removed_folders=%d pruned_entries=%d dry_run=%t",
		p.root, len(report.RemovedFiles), report.RenamedArt, report.RemovedFolders, report.PrunedEntries, opts.DryRun)
	return report, nil
}

func (p *Pruner) fail(report *Report, format string, path string, err error) {
	log.Printf("WARN: "+format+" path=%q error=%v", path, err)
	report.Errors = append(report.Errors, path+": "+err.Error())
}

// renameAlbumArt renames album_art.<ext> images to cover.<ext>.
func (p *Pruner) renameAlbumArt(ctx context.Context, report *Report) error {
	return filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		ext := filepath.Ext(name)
		if ext != "" && !lo.Contains(imageExtensions, strings.ToLower(ext)) {
			return nil
		}
		if strings.ToLower(strings.TrimSuffix(name, ext)) != "album_art" {
			return nil
		}

		target := filepath.Join(filepath.Dir(path), "cover"+ext)
		if _, err := os.Lstat(target); err == nil {
			report.SkippedArt++
			return nil
		}
		if !report.DryRun {
			if err := os.Rename(path, target); err != nil {
				p.fail(report, "album_art_rename_failed", path, err)
				return nil
			}
		}
		log.Printf("INFO: album_art_renamed from=%q to=%q dry_run=%t", path, target, report.DryRun)
		report.RenamedArt++
		return nil
	})
}

// removeArtists deletes audio files credited to one of the listed artists.
// Tags decide first; file and folder names are the fallback.
func (p *Pruner) removeArtists(ctx context.Context, index []artistEntry, report *Report) error {
	var files []string
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() && hashcache.IsAudio(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		matched, ok := p.matchFile(path, index)
		if !ok {
			continue
		}
		if !report.DryRun {
			if err := os.Remove(path); err != nil {
				p.fail(report, "artist_file_remove_failed", path, err)
				continue
			}
			if p.cache != nil {
				if err := p.cache.Forget(path); err != nil {
					log.Printf("WARN: hash_cache_forget_failed path=%q error=%v", path, err)
				}
			}
		}
		log.Printf("INFO: artist_file_removed path=%q artist=%q dry_run=%t", path, matched, report.DryRun)
		report.RemovedFiles = append(report.RemovedFiles, path)
		report.PerArtist[matched]++
	}
	return nil
}

func (p *Pruner) matchFile(path string, index []artistEntry) (string, bool) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") && p.readArtists != nil {
		if tagged, err := p.readArtists(path); err == nil {
			if name, ok := findArtist(tagged, index); ok {
				return name, true
			}
		}
	}

	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := len(parts) - 1
	candidates := append([]string{strings.TrimSuffix(parts[last], filepath.Ext(parts[last]))}, parts[:last]...)
	return findArtist(candidates, index)
}

// removeEmptyFolders removes folders, deepest first, that hold nothing but
// disposable files such as cover.jpg. The root is never removed.
func (p *Pruner) removeEmptyFolders(ctx context.Context, report *Report) error {
	var dirs []string
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != p.root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	removed := make(map[string]bool)
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var disposable []string
		keep := false
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			switch {
			case e.IsDir() && removed[full]:
			case !e.IsDir() && disposableFiles[strings.ToLower(e.Name())]:
				disposable = append(disposable, full)
			case !e.IsDir() && report.DryRun && lo.Contains(report.RemovedFiles, full):
			default:
				keep = true
			}
			if keep {
				break
			}
		}
		if keep {
			continue
		}

		if !report.DryRun {
			for _, f := range disposable {
				if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
					p.fail(report, "folder_file_remove_failed", f, err)
				}
			}
			if err := os.Remove(dir); err != nil {
				p.fail(report, "folder_remove_failed", dir, err)
				continue
			}
		}
		log.Printf("INFO: folder_removed path=%q dry_run=%t", dir, report.DryRun)
		removed[dir] = true
		report.RemovedFolders++
	}
	return nil
}

type artistEntry struct {
	name    string
	compact string
}

// normalize lower-cases text and turns every run of non alphanumerics into
// one space.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func buildIndex(artists []string) []artistEntry {
	return lo.FilterMap(artists, func(name string, _ int) (artistEntry, bool) {
		norm := normalize(name)
		return artistEntry{name: name, compact: strings.ReplaceAll(norm, " ", "")}, norm != ""
	})
}

// matches reports whether text names the artist, ignoring case, spacing and
// punctuation. Contiguous artist words always satisfy the compact check.
func (a artistEntry) matches(text string) bool {
	compact := strings.ReplaceAll(normalize(text), " ", "")
	return compact != "" && strings.Contains(compact, a.compact)
}

func findArtist(candidates []string, index []artistEntry) (string, bool) {
	for _, c := range candidates {
		for _, a := range index {
			if a.matches(c) {
				return a.name, true
			}
		}
	}
	return "", false
}
