package metadata

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from metadata store operations.
//
// These are business logic errors (record not found, name taken, stale
// compare-and-swap) as opposed to infrastructure errors, which stores wrap
// with ErrIOError. The service layer translates codes into its own kinds.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Field names the unique attribute involved in an ErrAlreadyExists
	// error: "username", "email", "filename", or "token".
	Field string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a StoreError.
type ErrorCode int

const (
	// ErrNotFound indicates the requested user, file, or token doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	// StoreError.Field tells which one.
	ErrAlreadyExists

	// ErrConflict indicates a compare-and-swap precondition failed: the
	// record changed since the caller read it.
	ErrConflict

	// ErrInvalidArgument indicates invalid parameters were provided
	ErrInvalidArgument

	// ErrIOError indicates the backend failed (disk, network, driver)
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrConflict:
		return "conflict"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "io error"
	default:
		return "unknown"
	}
}

// Field names used in ErrAlreadyExists errors.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldFilename = "filename"
	FieldToken    = "token"
)

// NewNotFoundError returns an ErrNotFound StoreError.
func NewNotFoundError(what string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: what + " not found"}
}

// NewAlreadyExistsError returns an ErrAlreadyExists StoreError for field.
func NewAlreadyExistsError(field string) *StoreError {
	return &StoreError{Code: ErrAlreadyExists, Message: "already exists", Field: field}
}

// NewConflictError returns an ErrConflict StoreError.
func NewConflictError(message string) *StoreError {
	return &StoreError{Code: ErrConflict, Message: message}
}

// NewInvalidArgumentError returns an ErrInvalidArgument StoreError.
func NewInvalidArgumentError(message string) *StoreError {
	return &StoreError{Code: ErrInvalidArgument, Message: message}
}

// NewIOError wraps a backend failure.
func NewIOError(op string, err error) *StoreError {
	return &StoreError{Code: ErrIOError, Message: op + " failed", Err: err}
}

// ErrorCodeOf extracts the code of a StoreError anywhere in err's chain.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code, true
	}
	return 0, false
}

// IsNotFound reports whether err is an ErrNotFound StoreError.
func IsNotFound(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrNotFound
}

// IsAlreadyExists reports whether err is an ErrAlreadyExists StoreError and
// returns the offending field.
func IsAlreadyExists(err error) (string, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) && storeErr.Code == ErrAlreadyExists {
		return storeErr.Field, true
	}
	return "", false
}

// IsConflict reports whether err is an ErrConflict StoreError.
func IsConflict(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrConflict
}
