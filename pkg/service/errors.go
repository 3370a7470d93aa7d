package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// Kind classifies a service error. Adapters map kinds to their own status
// codes; the HTTP adapter, for example, folds NotFound and Forbidden into a
// single 404.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindDuplicateUsername
	KindDuplicateEmail
	KindDuplicateFilename
	KindInvalidCredentials
	KindNotFound
	KindForbidden
	KindInvalidToken
	KindExpired
	KindFileNoLongerShareable
	KindStorageFailure
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindDuplicateUsername:
		return "duplicate_username"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindDuplicateFilename:
		return "duplicate_filename"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidToken:
		return "invalid_token"
	case KindExpired:
		return "expired"
	case KindFileNoLongerShareable:
		return "file_no_longer_shareable"
	case KindStorageFailure:
		return "storage_failure"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every service operation.
//
// Op names the failing operation ("catalog.upload"), Message is safe to show
// to the caller, and Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so callers can write
// errors.Is(err, service.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is. They carry only a Kind.
var (
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrDuplicateUsername     = &Error{Kind: KindDuplicateUsername}
	ErrDuplicateEmail        = &Error{Kind: KindDuplicateEmail}
	ErrDuplicateFilename     = &Error{Kind: KindDuplicateFilename}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInvalidToken          = &Error{Kind: KindInvalidToken}
	ErrExpired               = &Error{Kind: KindExpired}
	ErrFileNoLongerShareable = &Error{Kind: KindFileNoLongerShareable}
	ErrStorageFailure        = &Error{Kind: KindStorageFailure}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
)

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// fromStore translates a metadata or blob store error into a service error.
// Context errors are returned unchanged so callers can tell cancellation
// apart from failures.
func fromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}

	if field, ok := metadata.IsAlreadyExists(err); ok {
		switch field {
		case metadata.FieldUsername:
			return newError(KindDuplicateUsername, op, "username already taken", err)
		case metadata.FieldEmail:
			return newError(KindDuplicateEmail, op, "email already registered", err)
		case metadata.FieldFilename:
			return newError(KindDuplicateFilename, op, "a file with this name already exists", err)
		}
	}

	if code, ok := metadata.ErrorCodeOf(err); ok {
		switch code {
		case metadata.ErrNotFound:
			return newError(KindNotFound, op, "not found", err)
		case metadata.ErrInvalidArgument:
			return newError(KindInvalidInput, op, "invalid argument", err)
		}
	}

	if errors.Is(err, blob.ErrInvalidName) || errors.Is(err, blob.ErrInvalidRef) {
		return newError(KindInvalidInput, op, "invalid filename", err)
	}

	return newError(KindStorageFailure, op, "storage failure", err)
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return KindOf(err).String()
}
