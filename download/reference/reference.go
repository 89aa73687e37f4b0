package reference

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the domain a reference points into. The active input file decides it.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

// Form is the notation the reference was written in.
type Form string

const (
	FormName Form = "name"
	FormID   Form = "id"
	FormURI  Form = "uri"
	FormURL  Form = "url"
)

// IDLength is the length of a Spotify base62 identifier.
const IDLength = 22

var (
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)
	uriPattern = regexp.MustCompile(`(?i)^spotify:(track|album|playlist|artist):(\S+)$`)
	urlPattern = regexp.MustCompile(`(?i)^(?:https?://)?open\.spotify\.com/(?:intl-[a-z]{2}(?:-[a-z]{2})?/)?(track|album|playlist|artist)/([^?#\s]+)`)
)

// Reference is one parsed input entry. It is immutable once parsed.
type Reference struct {
	Kind      Kind
	Form      Form
	Value     string // ID for id/uri/url forms, free text for name form
	Qualifier string // artist (track/album) or owner (playlist) hint after the first comma
	Raw       string
	Line      int // 1-based position in the input list
}

// ID returns the canonical identifier for id, uri and url forms, or "" for names.
func (r Reference) ID() string {
	if r.Form == FormName {
		return ""
	}
	return r.Value
}

// URI renders the canonical spotify:<kind>:<id> notation.
func (r Reference) URI() string {
	if r.Form == FormName {
		return ""
	}
	return fmt.Sprintf("spotify:%s:%s", r.Kind, r.Value)
}

// URL renders the canonical web URL.
func (r Reference) URL() string {
	if r.Form == FormName {
		return ""
	}
	return fmt.Sprintf("https://open.spotify.com/%s/%s", r.Kind, r.Value)
}

// String returns a short human readable label used in warnings.
func (r Reference) String() string {
	if r.Form != FormName {
		return fmt.Sprintf("%s %s", r.Kind, r.URI())
	}
	if r.Qualifier != "" {
		return fmt.Sprintf("%s %q (%s)", r.Kind, r.Value, r.Qualifier)
	}
	return fmt.Sprintf("%s %q", r.Kind, r.Value)
}

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTrack, KindAlbum, KindPlaylist, KindArtist:
		return true
	}
	return false
}

// Parse classifies a raw entry for the given kind.
// Precedence is URI, then URL, then bare ID, then free text name.
func Parse(kind Kind, raw string) (Reference, error) {
	if !kind.Valid() {
		return Reference{}, &MalformedReferenceError{Raw: raw, Message: fmt.Sprintf("unknown kind %q", kind)}
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Reference{}, &MalformedReferenceError{Raw: raw, Message: "empty entry"}
	}

	// A trailing ", <qualifier>" applies to every form; artist names may
	// themselves contain commas and never carry one.
	head, qualifier := text, ""
	if kind != KindArtist {
		if i := strings.Index(text, ","); i >= 0 {
			head = strings.TrimSpace(text[:i])
			qualifier = strings.TrimSpace(text[i+1:])
		}
	}

	if m := uriPattern.FindStringSubmatch(head); m != nil {
		id, err := checkTarget(kind, Kind(strings.ToLower(m[1])), m[2], raw)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: kind, Form: FormURI, Value: id, Qualifier: qualifier, Raw: raw}, nil
	}

	if m := urlPattern.FindStringSubmatch(head); m != nil {
		id, err := checkTarget(kind, Kind(strings.ToLower(m[1])), m[2], raw)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: kind, Form: FormURL, Value: id, Qualifier: qualifier, Raw: raw}, nil
	}

	if idPattern.MatchString(head) {
		return Reference{Kind: kind, Form: FormID, Value: head, Qualifier: qualifier, Raw: raw}, nil
	}

	if head == "" {
		return Reference{}, &MalformedReferenceError{Raw: raw, Message: "name is empty"}
	}
	return Reference{Kind: kind, Form: FormName, Value: head, Qualifier: qualifier, Raw: raw}, nil
}

// checkTarget validates the kind and ID captured from a URI or URL.
func checkTarget(want, got Kind, id, raw string) (string, error) {
	if got != want {
		return "", &MalformedReferenceError{
			Raw:     raw,
			Message: fmt.Sprintf("points to a %s, expected a %s", got, want),
		}
	}
	id = strings.SplitN(id, "/", 2)[0]
	if !idPattern.MatchString(id) {
		return "", &MalformedReferenceError{Raw: raw, Message: fmt.Sprintf("invalid %s ID %q", want, id)}
	}
	return id, nil
}
