package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/AJMSD/raga/download/catalog"
)

// Normalize folds text for comparison: diacritics removed, lower case, only
// letters, digits and single spaces kept.
func Normalize(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func matchesText(candidate, target string) bool {
	c := Normalize(candidate)
	return c != "" && (c == target || strings.Contains(c, target))
}

func matchesArtists(artists []catalog.ArtistRef, target string) bool {
	for _, a := range artists {
		if matchesText(a.Name, target) || matchesText(a.ID, target) {
			return true
		}
	}
	return false
}

// Qualifies reports whether entity satisfies qualifier. Tracks and albums
// match on a credited artist, playlists on the owner. An empty qualifier
// always qualifies.
func Qualifies(entity catalog.Entity, qualifier string) bool {
	target := Normalize(qualifier)
	if target == "" {
		return true
	}
	switch e := entity.(type) {
	case *catalog.Track:
		return matchesArtists(e.Artists, target)
	case *catalog.Album:
		return matchesArtists(e.Artists, target)
	case *catalog.Playlist:
		return matchesText(e.Owner.ID, target) || matchesText(e.Owner.DisplayName, target)
	case *catalog.Artist:
		return true
	}
	return false
}
