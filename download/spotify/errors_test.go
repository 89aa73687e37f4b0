package spotify

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("http status %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

type retryErr struct{ statusErr }

func (e retryErr) RetryAfter() int { return 30 }

func TestHandleError(t *testing.T) {
	c := &SpotifyClient{tracker: NewRateLimitTracker()}

	var rl *RateLimitError
	if err := c.handleError("track", "x", retryErr{statusErr{429}}); !errors.As(err, &rl) || rl.RetryAfter != 30 {
		t.Errorf("handleError(429) = %v, want RateLimitError retry 30", err)
	}
	if c.tracker.Info() == nil {
		t.Error("handleError(429) did not update the tracker")
	}

	var nf *NotFoundError
	if err := c.handleError("album", "x", statusErr{404}); !errors.As(err, &nf) {
		t.Errorf("handleError(404) = %v, want NotFoundError", err)
	}

	var se *SpotifyError
	if err := c.handleError("album", "x", statusErr{502}); !errors.As(err, &se) || se.StatusCode != 502 {
		t.Errorf("handleError(502) = %v, want SpotifyError 502", err)
	}

	if err := c.handleError("album", "x", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("handleError(canceled) = %v, want context.Canceled", err)
	}
	if c.handleError("album", "x", nil) != nil {
		t.Error("handleError(nil) should be nil")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &RateLimitError{RetryAfter: 1}, true},
		{"not found", &NotFoundError{Kind: "track", ID: "x"}, false},
		{"server error", &SpotifyError{StatusCode: 503}, true},
		{"client error", &SpotifyError{StatusCode: 401, Original: errors.New("unauthorized")}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain", errors.New("invalid id"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
