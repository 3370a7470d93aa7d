package blob

import "errors"

// ============================================================================
// Standard Blob Store Errors
// ============================================================================

// These errors give every blob store implementation a common vocabulary for
// the failure conditions callers need to tell apart. Services check them with
// errors.Is and map them to their own error kinds.
//
// Implementations wrap them with the offending ref:
//
//	return nil, fmt.Errorf("get %s: %w", ref, blob.ErrBlobNotFound)

var (
	// ErrBlobNotFound indicates no blob is stored under the requested ref.
	//
	// Returned by Get, and by Copy when the source is missing. Delete never
	// returns it: deleting an absent blob succeeds.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidName indicates a user supplied filename cannot be turned into
	// a blob key.
	//
	// This error is returned when the name:
	//   - Is empty or only whitespace
	//   - Is "." or ".."
	//   - Contains a path separator ('/' or '\')
	//   - Contains NUL or other control characters
	//   - Is not valid UTF-8
	//   - Exceeds the configured maximum length
	ErrInvalidName = errors.New("invalid filename")

	// ErrInvalidRef indicates a ref that is not a clean relative key.
	//
	// Stores re-validate every ref they receive so that a ref which did not
	// come from NewRef can never address a location outside the store.
	ErrInvalidRef = errors.New("invalid blob ref")
)
