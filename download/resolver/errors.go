package resolver

import (
	"fmt"

	"github.com/AJMSD/raga/download/reference"
)

// NoMatchError means the provider returned nothing acceptable for a reference.
type NoMatchError struct {
	Kind      reference.Kind
	Query     string
	Qualifier string
	Market    string
	Reason    string
}

func (e *NoMatchError) Error() string {
	msg := fmt.Sprintf("no %s found for %q", e.Kind, e.Query)
	if e.Qualifier != "" {
		msg += fmt.Sprintf(" matching %q", e.Qualifier)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Market != "" {
		msg += fmt.Sprintf("; check that market %s carries it", e.Market)
	}
	return msg
}

// ProviderTransientError is returned once a retryable provider failure
// outlasted every attempt.
type ProviderTransientError struct {
	Operation string
	Attempts  int
	Original  error
}

func (e *ProviderTransientError) Error() string {
	return fmt.Sprintf("metadata provider unavailable for %s after %d attempts: %v", e.Operation, e.Attempts, e.Original)
}

func (e *ProviderTransientError) Unwrap() error {
	return e.Original
}
