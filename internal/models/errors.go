package models

import (
	"errors"
)

// ErrorKind classifies ingestion and query failures
type ErrorKind string

const (
	KindMalformedLine    ErrorKind = "MalformedLine"
	KindInvalidDate      ErrorKind = "InvalidDate"
	KindDuplicateKey     ErrorKind = "DuplicateKey"
	KindFileUnreadable   ErrorKind = "FileUnreadable"
	KindInvalidParameter ErrorKind = "InvalidParameter"
	KindStoreUnavailable ErrorKind = "StoreUnavailable"
)

// Sentinel errors matched with errors.Is
var (
	ErrMalformedLine    = errors.New("malformed line")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrFileUnreadable   = errors.New("file unreadable")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError represents a record or parameter validation failure.
// Validation errors are permanent; retrying the same input fails again.
type ValidationError struct {
	Kind    ErrorKind
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is lets errors.Is match a ValidationError against the sentinel for its kind
func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case KindMalformedLine:
		return target == ErrMalformedLine
	case KindInvalidDate:
		return target == ErrInvalidDate
	case KindInvalidParameter:
		return target == ErrInvalidParameter
	}
	return false
}

// KindOf reports the ErrorKind carried by err, or "" when err is not one of ours
func KindOf(err error) ErrorKind {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Kind
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrFileUnreadable):
		return KindFileUnreadable
	case errors.Is(err, ErrMalformedLine):
		return KindMalformedLine
	case errors.Is(err, ErrInvalidDate):
		return KindInvalidDate
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	}
	return ""
}

func invalidParameter(field, value, message string) *ValidationError {
	return &ValidationError{
		Kind:    KindInvalidParameter,
		Field:   field,
		Value:   value,
		Message: message,
	}
}
