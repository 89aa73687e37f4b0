package library

import "fmt"

// PlacementError reports a file that could not be moved into the library.
type PlacementError struct {
	Path     string
	Message  string
	Original error
}

func (e *PlacementError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("Placement error: %s (%s): %v", e.Message, e.Path, e.Original)
	}
	return fmt.Sprintf("Placement error: %s (%s)", e.Message, e.Path)
}

func (e *PlacementError) Unwrap() error {
	return e.Original
}
