package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode identifies which input file drives a run.
type Mode string

const (
	ModeSongs     Mode = "songs"
	ModeAlbums    Mode = "albums"
	ModePlaylists Mode = "playlists"
	ModeArtists   Mode = "artists"
)

// inputFiles lists the input files in priority order.
var inputFiles = []struct {
	mode Mode
	name string
}{
	{ModeSongs, "songs.txt"},
	{ModeAlbums, "album.txt"},
	{ModePlaylists, "playlist.txt"},
	{ModeArtists, "artist.txt"},
}

// Kind returns the reference kind every entry of a mode's file resolves to.
func (m Mode) Kind() Kind {
	switch m {
	case ModeSongs:
		return KindTrack
	case ModeAlbums:
		return KindAlbum
	case ModePlaylists:
		return KindPlaylist
	case ModeArtists:
		return KindArtist
	}
	return ""
}

// Input is the selected input file for a run.
type Input struct {
	Mode     Mode
	Path     string
	Shadowed []string // lower priority input files that were present and ignored
}

// ErrNoInput is returned by ResolveInput when no input file exists.
var ErrNoInput = errors.New("no songs.txt, album.txt, playlist.txt or artist.txt found")

// ResolveInput picks exactly one input file from dir.
// Priority is songs.txt, album.txt, playlist.txt, artist.txt.
func ResolveInput(dir string) (*Input, error) {
	var found *Input
	for _, f := range inputFiles {
		path := filepath.Join(dir, f.name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if found == nil {
			found = &Input{Mode: f.mode, Path: path}
			continue
		}
		found.Shadowed = append(found.Shadowed, f.name)
	}
	if found == nil {
		return nil, ErrNoInput
	}
	return found, nil
}

// LoadFile reads an input file and parses every entry for the mode's kind.
// Entries that fail to parse are returned as errors alongside the good ones; order is kept.
func LoadFile(mode Mode, path string) ([]Reference, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read input file: %w", err)
	}
	entries := ParseList(string(data), mode != ModeArtists)

	refs := make([]Reference, 0, len(entries))
	var errs []error
	for i, entry := range entries {
		ref, err := Parse(mode.Kind(), entry)
		if err != nil {
			if me, ok := err.(*MalformedReferenceError); ok {
				me.Line = i + 1
			}
			errs = append(errs, err)
			continue
		}
		ref.Line = i + 1
		refs = append(refs, ref)
	}
	return refs, errs, nil
}

// ParseList extracts entries from list file content.
// It accepts a JSON array of strings, a Python style list literal, or a loose
// bracketed list. In the loose form entries are split per line when
// linesAreEntries is set (names may then contain commas) and on commas otherwise.
func ParseList(content string, linesAreEntries bool) []string {
	content = strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))
	if content == "" {
		return nil
	}

	if items, ok := parseJSONList(content); ok {
		return items
	}
	if items, ok := parseLiteralList(content); ok {
		return items
	}

	text := content
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		text = text[1 : len(text)-1]
	}

	var out []string
	if linesAreEntries {
		for _, line := range strings.Split(text, "\n") {
			line = strings.Trim(strings.TrimSpace(line), ",")
			if line = stripQuotes(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	for _, part := range strings.Split(text, ",") {
		if part = stripQuotes(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseJSONList(content string) ([]string, bool) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, false
	}
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			text := strings.TrimSpace(fmt.Sprint(item))
			if text != "" {
				out = append(out, text)
			}
		}
		return out, true
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}, true
		}
	}
	return nil, false
}

// parseLiteralList reads a list literal such as ['a', "b, c", None].
func parseLiteralList(content string) ([]string, bool) {
	if !strings.HasPrefix(content, "[") || !strings.HasSuffix(content, "]") {
		return nil, false
	}
	body := []rune(content[1 : len(content)-1])
	var out []string
	for i := 0; i < len(body); {
		r := body[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ',':
			i++
		case r == '\'' || r == '"':
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(body) {
				c := body[j]
				if c == '\\' && j+1 < len(body) {
					b.WriteRune(unescape(body[j+1]))
					j += 2
					continue
				}
				if c == r {
					closed = true
					break
				}
				b.WriteRune(c)
				j++
			}
			if !closed {
				return nil, false
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			i = j + 1
		case strings.HasPrefix(string(body[i:]), "None"):
			i += len("None")
		default:
			return nil, false
		}
	}
	return out, true
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	}
	return r
}

func stripQuotes(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	return text
}
