package reference

import "fmt"

// MalformedReferenceError is returned for an entry that cannot be classified.
type MalformedReferenceError struct {
	Raw     string
	Line    int
	Message string
}

func (e *MalformedReferenceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Malformed reference at entry %d %q: %s", e.Line, e.Raw, e.Message)
	}
	return fmt.Sprintf("Malformed reference %q: %s", e.Raw, e.Message)
}
