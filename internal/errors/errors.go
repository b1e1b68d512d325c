// Package errors defines the typed error hierarchy for source-fast, following
// the error kinds named in the indexing and query design: QueryTooShort,
// InvalidRegex, Busy, IoError, Corrupt, VcsUnavailable, and Cancelled.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for callers that need to branch on it (exit
// codes, retry policy) without string-matching messages.
type Kind string

const (
	KindQueryTooShort Kind = "query_too_short"
	KindInvalidRegex  Kind = "invalid_regex"
	KindBusy          Kind = "busy"
	KindIOError       Kind = "io_error"
	KindCorrupt       Kind = "corrupt"
	KindVcsUnavailable Kind = "vcs_unavailable"
	KindCancelled     Kind = "cancelled"
	KindConfig        Kind = "config"
	KindInternal      Kind = "internal"
)

// Error is the typed error carried across core component boundaries. It
// wraps an underlying cause and optionally names the file or operation
// involved, so recoverable per-file errors can be collected during a pass
// without losing context.
type Error struct {
	Kind       Kind
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// New creates an Error of the given kind wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{
		Kind:      kind,
		Operation: op,
		Underlying: err,
		Timestamp: time.Now(),
	}
}

// WithPath attaches the file or directory path the error concerns.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Operation, e.Underlying)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errors.Busy) style checks against sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel values for errors.Is comparisons against a bare Kind, e.g.
// errors.Is(err, errors.Busy).
var (
	Busy           = &Error{Kind: KindBusy}
	QueryTooShort  = &Error{Kind: KindQueryTooShort}
	InvalidRegex   = &Error{Kind: KindInvalidRegex}
	Corrupt        = &Error{Kind: KindCorrupt}
	VcsUnavailable = &Error{Kind: KindVcsUnavailable}
	Cancelled      = &Error{Kind: KindCancelled}
)

// IsKind reports whether err (or something it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// MultiError aggregates recoverable per-file errors collected during an
// index pass; the pass itself still succeeds if the transaction commits.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors (first: %v)", len(e.Errors), e.Errors[0])
}

func (e *MultiError) Unwrap() []error {
	return e.Errors
}
