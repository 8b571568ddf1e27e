package asset

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedIdentifier is returned when a filename does not follow the
	// identifier grammar.
	ErrMalformedIdentifier = errors.New("malformed asset identifier")

	// ErrBadFormat is returned when the file extension is not an allowed format.
	ErrBadFormat = errors.New("unsupported asset format")

	// ErrUnsupportedYearWrap is returned when a span starts after it ends
	// within the reference year.
	ErrUnsupportedYearWrap = errors.New("span wraps past the end of the year")

	// ErrNonexistentDate is returned when a fixed date does not exist in the
	// reference year (29 February outside leap years).
	ErrNonexistentDate = errors.New("date does not exist in reference year")

	// ErrUnknownSpecialCase is returned when no resolver is registered for a
	// special-case id.
	ErrUnknownSpecialCase = errors.New("unknown special case")

	// ErrSpecialCaseFailed is returned when a registered resolver fails.
	ErrSpecialCaseFailed = errors.New("special case resolver failed")

	// ErrEmptyRange marks a resolved range whose start is after its end.
	// Resolve returns special-case dates as given; batch validation rejects
	// such an asset since it is never active.
	ErrEmptyRange = errors.New("resolved range has no days")
)

// ParseError describes why a filename was rejected.
type ParseError struct {
	Filename string
	Token    string
	Reason   string
	Err      error // ErrMalformedIdentifier or ErrBadFormat
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse %q: %v: %s", e.Filename, e.Err, e.Reason)
	}
	return fmt.Sprintf("parse %q: %v: token %q: %s", e.Filename, e.Err, e.Token, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ResolveError describes why an identifier could not be resolved for a year.
type ResolveError struct {
	ID    Identifier
	Year  int
	Err   error // one of the resolve sentinels
	Cause error // underlying resolver failure, if any
}

func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("resolve %s for %d: %v", e.ID, e.Year, e.Err)
	if e.ID.Kind == KindSpecialCase {
		msg = fmt.Sprintf("resolve %s for %d: %v %q", e.ID, e.Year, e.Err, e.ID.SpecialID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResolveError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func malformed(filename, token, reason string) *ParseError {
	return &ParseError{Filename: filename, Token: token, Reason: reason, Err: ErrMalformedIdentifier}
}
