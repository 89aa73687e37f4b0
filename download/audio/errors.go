package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCandidates is wrapped by a SearchError whose search returned nothing.
var ErrNoCandidates = errors.New("no audio found")

// SearchError reports a failed or empty yt-dlp search.
type SearchError struct {
	Query       string
	Message     string
	RateLimited bool
	Original    error
}

func (e *SearchError) Error() string {
	msg := "audio search"
	if e.Query != "" {
		msg += fmt.Sprintf(" %q", e.Query)
	}
	msg += ": " + e.Message
	if e.Original != nil {
		msg += ": " + e.Original.Error()
	}
	return msg
}

func (e *SearchError) Unwrap() error {
	return e.Original
}

// DownloadError reports a failed yt-dlp download of one source URL.
type DownloadError struct {
	URL         string
	Message     string
	RateLimited bool
	Original    error
}

func (e *DownloadError) Error() string {
	msg := "audio download"
	if e.URL != "" {
		msg += " " + e.URL
	}
	msg += ": " + e.Message
	if e.Original != nil {
		msg += ": " + e.Original.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error {
	return e.Original
}

// noCandidates is the SearchError for an empty result.
func noCandidates(query, message string) *SearchError {
	return &SearchError{Query: query, Message: message, Original: ErrNoCandidates}
}

// isRateLimited inspects yt-dlp stderr for throttling by the source.
func isRateLimited(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}
