package metadata

import (
	"strings"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
)

// User is a registered account.
//
// Users are created by registration and never mutated or deleted by the
// core. PasswordHash is a bcrypt hash and is never serialized to clients.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a copy of u.
func (u *User) Clone() *User {
	c := *u
	return &c
}

// FileRecord is the metadata of one stored file.
//
// (Owner, Filename) is unique among live records. ContentRef points at the
// blob holding the bytes; it changes on rename and on replace uploads, which
// is what the compare-and-swap operations key on.
type FileRecord struct {
	ID          int64     `json:"id"`
	Owner       string    `json:"owner"`
	Filename    string    `json:"filename"`
	ContentRef  blob.Ref  `json:"content_ref"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"content_type"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy of f.
func (f *FileRecord) Clone() *FileRecord {
	c := *f
	return &c
}

// FileContent is the content-describing part of a FileRecord, swapped as a
// unit by ReplaceFileContent.
type FileContent struct {
	ContentRef  blob.Ref
	Size        int64
	Checksum    string
	ContentType string
}

// ShareToken is a persisted share link.
//
// Only the SHA-256 hex digest of the bearer token is stored. FileID binds the
// token to one record; Owner and Filename record the state at issuance and
// are re-checked against the live record on every resolve.
type ShareToken struct {
	TokenHash string    `json:"token_hash"`
	FileID    int64     `json:"file_id"`
	Owner     string    `json:"owner"`
	Filename  string    `json:"filename"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Clone returns a copy of t.
func (t *ShareToken) Clone() *ShareToken {
	c := *t
	return &c
}

// Expired reports whether the token is no longer valid at now.
func (t *ShareToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NormalizeEmail is the canonical form used for email uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MatchesQuery reports whether filename contains query, ignoring case.
// An empty query matches everything.
func MatchesQuery(filename, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(filename), strings.ToLower(query))
}
