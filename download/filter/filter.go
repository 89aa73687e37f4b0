// Package filter drops instrumental renditions from search candidate lists.
package filter

import (
	"strings"

	"github.com/samber/lo"
)

// DefaultKeywords mark a candidate title as an instrumental or karaoke rendition.
var DefaultKeywords = []string{"instrumental", "karaoke", "backing track", "no vocals"}

// Keywords is the active list. Set it at startup, before any filtering runs.
var Keywords = DefaultKeywords

// SetKeywords replaces the active list with the lower-cased, non-empty
// entries of keywords. An empty result restores DefaultKeywords.
func SetKeywords(keywords []string) {
	cleaned := lo.Uniq(lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
		k = strings.ToLower(strings.TrimSpace(k))
		return k, k != ""
	}))
	if len(cleaned) == 0 {
		cleaned = DefaultKeywords
	}
	Keywords = cleaned
}

// IsInstrumental reports whether title contains any keyword, case insensitively.
func IsInstrumental(title string) bool {
	lower := strings.ToLower(title)
	return lo.SomeBy(Keywords, func(k string) bool {
		return strings.Contains(lower, k)
	})
}

// Instrumental removes candidates whose title looks instrumental.
// When every candidate matches, the input is returned unchanged so the
// caller always has something to fall back on.
func Instrumental[T any](candidates []T, title func(T) string) []T {
	kept := lo.Reject(candidates, func(c T, _ int) bool {
		return IsInstrumental(title(c))
	})
	if len(kept) == 0 {
		return candidates
	}
	return kept
}
