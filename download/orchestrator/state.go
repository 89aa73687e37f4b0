package orchestrator

import (
	"github.com/AJMSD/raga/download/catalog"
	"github.com/AJMSD/raga/download/reference"
)

// State is the lifecycle position of one track.
//
//	Pending -> Acquiring -> Hashed -> Duplicate | Accepted
//	Pending | Acquiring | Hashed -> Failed
type State string

const (
	StatePending   State = "pending"
	StateAcquiring State = "acquiring"
	StateHashed    State = "hashed"
	StateDuplicate State = "duplicate"
	StateAccepted  State = "accepted"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateDuplicate, StateAccepted, StateFailed:
		return true
	}
	return false
}

// TrackResult is the outcome of one track.
type TrackResult struct {
	Track    *catalog.Track
	Position int // 1-based within its entity
	State    State
	Path     string // placed file, or the existing file for a duplicate
	Err      error
}

// UnitResult is the outcome of one input reference.
type UnitResult struct {
	Ref     reference.Reference
	Entity  catalog.Entity // nil when skipped before resolution finished
	Tracks  []*TrackResult
	Skipped bool
	Err     error
}

// Counts tallies track states.
func (u *UnitResult) Counts() (accepted, duplicate, failed int) {
	for _, t := range u.Tracks {
		switch t.State {
		case StateAccepted:
			accepted++
		case StateDuplicate:
			duplicate++
		case StateFailed:
			failed++
		}
	}
	return accepted, duplicate, failed
}

// Summary is the outcome of a run.
type Summary struct {
	Acquired  int
	Duplicate int
	Skipped   int // references: malformed, no match, provider exhausted
	Failed    int // tracks
	Units     []*UnitResult
	Messages  []string
}

// OK reports whether nothing was skipped or failed.
func (s *Summary) OK() bool {
	return s.Skipped == 0 && s.Failed == 0
}

// EventKind discriminates Event.
type EventKind string

const (
	EventUnitStart    EventKind = "unit_start"
	EventUnitResolved EventKind = "unit_resolved"
	EventUnitSkipped  EventKind = "unit_skipped"
	EventTrackState   EventKind = "track_state"
	EventUnitDone     EventKind = "unit_done"
)

// Event is a progress notification. Observers receive events one at a time.
type Event struct {
	Kind   EventKind
	Index  int // 0-based reference index
	Total  int // reference count, or track count for EventUnitResolved
	Ref    reference.Reference
	Entity catalog.Entity
	Track  *catalog.Track
	State  State
	Path   string
	Err    error
}

// Observer receives progress events.
type Observer func(Event)
