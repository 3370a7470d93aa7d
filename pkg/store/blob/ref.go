package blob

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Ref is the opaque key of a stored blob.
//
// Refs produced by NewRef have the form "<owner>/<uuid>-<filename>". The
// per-upload UUID makes every ref unique, so two writers never target the
// same key and a new blob can always be written before the old one is
// removed.
type Ref string

// String implements fmt.Stringer.
func (r Ref) String() string {
	return string(r)
}

// Owner returns the first segment of the ref, which is the owning username
// for refs created by NewRef.
func (r Ref) Owner() string {
	owner, _, _ := strings.Cut(string(r), "/")
	return owner
}

// DefaultMaxFilenameLength is the filename limit used when the caller passes
// a non-positive maximum to ValidateFilename.
const DefaultMaxFilenameLength = 255

// maxKeyNameLength bounds the filename part embedded in a ref. The UUID
// already makes the key unique, so only a readable prefix is kept and the
// final path component stays below common filesystem limits.
const maxKeyNameLength = 96

// ValidateFilename checks that name can be used as a user visible filename.
//
// Parameters:
//   - name: The filename supplied by the user
//   - maxLen: Maximum length in bytes (DefaultMaxFilenameLength when <= 0)
//
// Returns:
//   - error: ErrInvalidName wrapped with the reason, or nil
func ValidateFilename(name string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLength
	}

	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	case len(name) > maxLen:
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, maxLen)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidName)
	}

	for _, r := range name {
		if r == '/' || r == '\\' {
			return fmt.Errorf("%w: name contains a path separator", ErrInvalidName)
		}
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control characters", ErrInvalidName)
		}
	}

	return nil
}

// ValidateRef checks that ref is a clean, relative key with no parent
// directory segments.
func ValidateRef(ref Ref) error {
	s := string(ref)

	if s == "" {
		return fmt.Errorf("%w: empty ref", ErrInvalidRef)
	}
	if strings.HasPrefix(s, "/") || strings.ContainsAny(s, "\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	if path.Clean(s) != s {
		return fmt.Errorf("%w: %q is not clean", ErrInvalidRef, s)
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q contains a reserved segment", ErrInvalidRef, s)
		}
	}

	return nil
}

// NewRef derives a fresh ref for a blob owned by owner and named filename.
//
// The filename is validated first, so a traversal attempt never reaches key
// derivation. Long filenames are shortened in the key only; the record keeps
// the full name.
//
// Parameters:
//   - owner: Owning username (must be a single path segment)
//   - filename: User visible filename (validated with the default limit)
//
// Returns:
//   - Ref: "<owner>/<uuid>-<filename>"
//   - error: ErrInvalidName or ErrInvalidRef
func NewRef(owner, filename string) (Ref, error) {
	if err := ValidateFilename(filename, 0); err != nil {
		return "", err
	}
	if owner == "" || strings.ContainsAny(owner, "/\\\x00") || owner == "." || owner == ".." {
		return "", fmt.Errorf("%w: invalid owner %q", ErrInvalidRef, owner)
	}

	ref := Ref(owner + "/" + uuid.NewString() + "-" + truncateName(filename, maxKeyNameLength))
	if err := ValidateRef(ref); err != nil {
		return "", err
	}
	return ref, nil
}

// truncateName shortens s to at most n bytes without splitting a rune.
func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
