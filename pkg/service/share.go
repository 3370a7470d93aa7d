package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// tokenBytes is the entropy of a share token.
const tokenBytes = 32

// IssuedShare is returned once from Issue. Token is the only copy of the
// bearer secret; the store keeps its digest.
type IssuedShare struct {
	Token     string    `json:"token"`
	FileID    int64     `json:"file_id"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SharedFile is what a valid share token resolves to, read from the live
// record at resolve time.
type SharedFile struct {
	FileID      int64     `json:"file_id"`
	Owner       string    `json:"owner"`
	Filename    string    `json:"filename"`
	ContentRef  blob.Ref  `json:"-"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ShareManager issues and resolves expiring public links to files.
//
// A token stays bound to the file ID it was issued for. Whether the file may
// still be shared is decided on every resolve from the live record: deleting
// the file or making it private revokes all its links at once without
// touching the token rows.
//
// Thread Safety:
// Safe for concurrent use.
type ShareManager struct {
	blobs   blob.BlobStore
	meta    metadata.MetadataStore
	cfg     SharingConfig
	metrics metrics.ServiceMetrics
	now     func() time.Time
}

// NewShareManager creates a share manager. m may be nil.
func NewShareManager(blobs blob.BlobStore, meta metadata.MetadataStore, cfg SharingConfig, m metrics.ServiceMetrics) *ShareManager {
	cfg.applyDefaults()
	if m == nil {
		m = metrics.NewNoopServiceMetrics()
	}
	return &ShareManager{
		blobs:   blobs,
		meta:    meta,
		cfg:     cfg,
		metrics: m,
		now:     defaultNow,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *ShareManager) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ShareManager) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, outcome(err), time.Since(start))
}

// Issue creates a share link for owner's public file.
//
// Parameters:
//   - ttl: Link lifetime; zero selects the configured default
//
// Returns:
//   - *IssuedShare: The bearer token and its expiry
//   - error: InvalidInput (bad TTL), NotFound, Forbidden (foreign or private
//     file), or StorageFailure
func (s *ShareManager) Issue(ctx context.Context, owner string, fileID int64, ttl time.Duration) (share *IssuedShare, err error) {
	const op = "share.issue"
	defer func(start time.Time) { s.observe("share_issue", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case ttl < 0:
		return nil, newError(KindInvalidInput, op, "ttl must not be negative", nil)
	case ttl == 0:
		ttl = s.cfg.DefaultTTL
	case ttl > s.cfg.MaxTTL:
		return nil, newError(KindInvalidInput, op, fmt.Sprintf("ttl must not exceed %s", s.cfg.MaxTTL), nil)
	}

	rec, err := s.meta.GetFile(ctx, fileID)
	if err != nil {
		return nil, fromStore(op, err)
	}
	if rec.Owner != owner {
		return nil, newError(KindForbidden, op, "file belongs to another user", nil)
	}
	if rec.IsPrivate {
		return nil, newError(KindForbidden, op, "private files cannot be shared", nil)
	}

	// A digest collision between two random 256-bit tokens does not happen
	// in practice; one retry covers a misbehaving store.
	for attempt := 0; attempt < 2; attempt++ {
		token, err := newToken()
		if err != nil {
			return nil, newError(KindStorageFailure, op, "failed to generate token", err)
		}

		now := s.now()
		row := &metadata.ShareToken{
			TokenHash: hashToken(token),
			FileID:    rec.ID,
			Owner:     rec.Owner,
			Filename:  rec.Filename,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		}
		err = s.meta.CreateShareToken(ctx, row)
		if _, dup := metadata.IsAlreadyExists(err); dup {
			continue
		}
		if err != nil {
			return nil, fromStore(op, err)
		}

		logger.Debug("Issued share link: owner=%s file_id=%d expires=%s", owner, rec.ID, row.ExpiresAt.Format(time.RFC3339))
		return &IssuedShare{
			Token:     token,
			FileID:    rec.ID,
			Filename:  rec.Filename,
			ExpiresAt: row.ExpiresAt,
		}, nil
	}
	return nil, newError(KindStorageFailure, op, "failed to store token", nil)
}

// Resolve returns the file a token points at, without authentication.
//
// Checks run in order: the token must be well formed and known
// (InvalidToken), unexpired (Expired), and its file must still exist, belong
// to the issuing owner, and be public (FileNoLongerShareable).
func (s *ShareManager) Resolve(ctx context.Context, token string) (shared *SharedFile, err error) {
	defer func(start time.Time) { s.observe("share_resolve", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.resolve(ctx, "share.resolve", token)
}

func (s *ShareManager) resolve(ctx context.Context, op, token string) (*SharedFile, error) {
	row, err := s.lookup(ctx, op, token)
	if err != nil {
		return nil, err
	}
	if row.Expired(s.now()) {
		return nil, newError(KindExpired, op, "share link has expired", nil)
	}

	rec, err := s.meta.GetFile(ctx, row.FileID)
	if metadata.IsNotFound(err) {
		return nil, newError(KindFileNoLongerShareable, op, "shared file was deleted", nil)
	}
	if err != nil {
		return nil, fromStore(op, err)
	}
	if rec.Owner != row.Owner || rec.IsPrivate {
		return nil, newError(KindFileNoLongerShareable, op, "shared file is no longer public", nil)
	}

	return &SharedFile{
		FileID:      rec.ID,
		Owner:       rec.Owner,
		Filename:    rec.Filename,
		ContentRef:  rec.ContentRef,
		Size:        rec.Size,
		ContentType: rec.ContentType,
		ExpiresAt:   row.ExpiresAt,
	}, nil
}

// Open resolves token and opens the shared content. The caller must close
// the reader. Like CatalogService.Download, the open is retried once if a
// concurrent rename moved the content.
func (s *ShareManager) Open(ctx context.Context, token string) (rc io.ReadCloser, shared *SharedFile, err error) {
	const op = "share.open"
	defer func(start time.Time) { s.observe("share_open", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		shared, err = s.resolve(ctx, op, token)
		if err != nil {
			return nil, nil, err
		}

		rc, err = s.blobs.Get(ctx, shared.ContentRef)
		if err == nil {
			return newCountingReader(rc, s.metrics, "share_download"), shared, nil
		}
		if !errors.Is(err, blob.ErrBlobNotFound) {
			return nil, nil, fromStore(op, err)
		}
	}

	logger.Error("Share open: record without content: file_id=%d ref=%s", shared.FileID, shared.ContentRef)
	return nil, nil, newError(KindStorageFailure, op, "file content is missing", blob.ErrBlobNotFound)
}

// Revoke deletes one of owner's share links. Unknown tokens are
// InvalidToken; tokens issued by someone else are Forbidden.
func (s *ShareManager) Revoke(ctx context.Context, owner, token string) (err error) {
	const op = "share.revoke"
	defer func(start time.Time) { s.observe("share_revoke", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}

	row, err := s.lookup(ctx, op, token)
	if err != nil {
		return err
	}
	if row.Owner != owner {
		return newError(KindForbidden, op, "share link belongs to another user", nil)
	}

	if err := s.meta.DeleteShareToken(ctx, row.TokenHash); err != nil {
		if metadata.IsNotFound(err) {
			return newError(KindInvalidToken, op, "unknown share link", nil)
		}
		return fromStore(op, err)
	}
	return nil
}

// lookup validates the token format and loads its row.
func (s *ShareManager) lookup(ctx context.Context, op, token string) (*metadata.ShareToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenBytes {
		return nil, newError(KindInvalidToken, op, "malformed share link", nil)
	}

	row, err := s.meta.GetShareToken(ctx, hashToken(token))
	if metadata.IsNotFound(err) {
		return nil, newError(KindInvalidToken, op, "unknown share link", nil)
	}
	if err != nil {
		return nil, fromStore(op, err)
	}
	return row, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
