package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for reporting and for the pipeline's failure policy.
type Kind int

const (
	Unknown Kind = iota
	ConfigurationError
	SourceUnavailable
	SourceQueryError
	MalformedInput
	InvalidSheetName
	IOFailure
	MalformedWorkbook
)

func (k Kind) String() string {
	switch k {
	case ConfigurationError:
		return "ConfigurationError"
	case SourceUnavailable:
		return "SourceUnavailable"
	case SourceQueryError:
		return "SourceQueryError"
	case MalformedInput:
		return "MalformedInput"
	case InvalidSheetName:
		return "InvalidSheetName"
	case IOFailure:
		return "IOFailure"
	case MalformedWorkbook:
		return "MalformedWorkbook"
	default:
		return "Unknown"
	}
}

// Error is a classified failure. The wrapped cause (if any) is reachable via errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return errors.Unwrap(e.err)
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: IOFailure})
// works without comparing messages.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Message == "" && t.Kind == e.Kind
	}

	return false
}

// KindOf returns the kind of the first *Error in the chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Unknown
}

func newError(kind Kind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)

	return &Error{
		Kind:    kind,
		Message: err.Error(),
		err:     err,
	}
}

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(format string, args ...any) *Error {
	return newError(ConfigurationError, format, args...)
}

// ErrSourceUnavailable creates a SourceUnavailable error with a formatted message.
func ErrSourceUnavailable(format string, args ...any) *Error {
	return newError(SourceUnavailable, format, args...)
}

// ErrSourceQuery creates a SourceQueryError with a formatted message.
func ErrSourceQuery(format string, args ...any) *Error {
	return newError(SourceQueryError, format, args...)
}

// ErrMalformedInput creates a MalformedInput error with a formatted message.
func ErrMalformedInput(format string, args ...any) *Error {
	return newError(MalformedInput, format, args...)
}

// ErrInvalidSheetName creates an InvalidSheetName error with a formatted message.
func ErrInvalidSheetName(format string, args ...any) *Error {
	return newError(InvalidSheetName, format, args...)
}

// ErrIOFailure creates an IOFailure error with a formatted message.
func ErrIOFailure(format string, args ...any) *Error {
	return newError(IOFailure, format, args...)
}

// ErrMalformedWorkbook creates a MalformedWorkbook error with a formatted message.
func ErrMalformedWorkbook(format string, args ...any) *Error {
	return newError(MalformedWorkbook, format, args...)
}
