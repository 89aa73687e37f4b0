package spotify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// RateLimitError represents an HTTP 429 from the Spotify API.
type RateLimitError struct {
	RetryAfter int // seconds
	Original   error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("Spotify API rate limited: retry after %d seconds: %v", e.RetryAfter, e.Original)
	}
	return fmt.Sprintf("Spotify API rate limited: %v", e.Original)
}

func (e *RateLimitError) Unwrap() error {
	return e.Original
}

// NotFoundError means the API has no entity for the requested ID.
type NotFoundError struct {
	Kind     string
	ID       string
	Original error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Spotify %s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Original
}

// SpotifyError represents any other Spotify API failure.
type SpotifyError struct {
	Message    string
	StatusCode int
	Original   error
}

func (e *SpotifyError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("Spotify API error: %s: %v", e.Message, e.Original)
	}
	return fmt.Sprintf("Spotify API error: %s", e.Message)
}

func (e *SpotifyError) Unwrap() error {
	return e.Original
}

// IsTransient reports whether err is worth retrying: rate limits, server
// errors and network failures. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false
	}
	var se *SpotifyError
	if errors.As(err, &se) && se.StatusCode != 0 {
		return se.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection reset", "connection refused", "eof", "502", "503", "504", "500 internal"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
