package metadata

import "fmt"

// TagOp names the tag operation that failed.
type TagOp string

const (
	OpOpen TagOp = "open"
	OpRead TagOp = "read"
	OpSave TagOp = "save"
)

// MetadataError reports a tag operation that failed on one file. Tagging is
// best effort: callers log it and keep the audio.
type MetadataError struct {
	Op       TagOp
	Path     string
	Original error
}

func (e *MetadataError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("metadata %s %s: %v", e.Op, e.Path, e.Original)
	}
	return fmt.Sprintf("metadata %s %s", e.Op, e.Path)
}

func (e *MetadataError) Unwrap() error {
	return e.Original
}
