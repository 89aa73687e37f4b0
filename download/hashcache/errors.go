package hashcache

import "fmt"

// CacheCorruptionError reports a cache file that could not be read.
// The cache treats it as absent and rebuilds from the tree.
type CacheCorruptionError struct {
	Path     string
	Message  string
	Original error
}

func (e *CacheCorruptionError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("Hash cache corrupt: %s: %s: %v", e.Path, e.Message, e.Original)
	}
	return fmt.Sprintf("Hash cache corrupt: %s: %s", e.Path, e.Message)
}

func (e *CacheCorruptionError) Unwrap() error {
	return e.Original
}
