package scraper

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable matches every *SourceUnavailableError via errors.Is.
var ErrSourceUnavailable = errors.New("source unavailable")

// Reasons recorded on a SourceUnavailableError.
const (
	ReasonEmpty   = "empty"
	ReasonBlocked = "blocked"
	ReasonFetch   = "fetch"
	ReasonTimeout = "timeout"
	ReasonPanic   = "panic"
)

// SourceUnavailableError reports that a source produced no usable page this
// run. It is distinct from a page that legitimately lists nothing.
type SourceUnavailableError struct {
	Source string
	Reason string
	Cause  error
}

func (e *SourceUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s unavailable (%s): %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("source %s unavailable (%s)", e.Source, e.Reason)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Cause
}

func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// RuleError reports a source rule that could not be compiled.
type RuleError struct {
	Source  string
	Message string
	Cause   error
}

func (e *RuleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rule %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule %s: %s", e.Source, e.Message)
}

func (e *RuleError) Unwrap() error {
	return e.Cause
}
