// Package service implements DittoBox's business layer: the catalog of
// per-user files, share links, and account authentication.
//
// Services hold no locks. Every invariant that spans concurrent requests
// (unique names, compare-and-swap on content refs) is delegated to the
// metadata store, and blob I/O always happens outside those atomic
// operations. When a blob has been written but the metadata change that
// would reference it fails, the blob is deleted again; if that compensation
// fails too, the orphan is logged and left for the garbage collector.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

const (
	// maxRenameCandidates bounds the "name (n).ext" search of the rename
	// collision policy.
	maxRenameCandidates = 100

	// maxCASAttempts bounds retries when a compare-and-swap loses a race.
	maxCASAttempts = 5

	// compensationTimeout bounds blob cleanup after a failed operation. It
	// runs on a context detached from the caller's, which may be cancelled.
	compensationTimeout = 30 * time.Second
)

// CatalogService manages file records and their content.
//
// Every operation takes the acting user's name and checks it against the
// record's owner; a mismatch is Forbidden.
//
// Thread Safety:
// Safe for concurrent use.
type CatalogService struct {
	blobs   blob.BlobStore
	meta    metadata.MetadataStore
	cfg     CatalogConfig
	metrics metrics.ServiceMetrics
	now     func() time.Time
}

// NewCatalogService creates a catalog over the given stores.
//
// Parameters:
//   - blobs: Where file content is stored
//   - meta: Where file records are stored
//   - cfg: Upload limits and collision policy
//   - m: Metrics sink; nil records nothing
func NewCatalogService(blobs blob.BlobStore, meta metadata.MetadataStore, cfg CatalogConfig, m metrics.ServiceMetrics) *CatalogService {
	cfg.applyDefaults()
	if m == nil {
		m = metrics.NewNoopServiceMetrics()
	}
	return &CatalogService{
		blobs:   blobs,
		meta:    meta,
		cfg:     cfg,
		metrics: m,
		now:     defaultNow,
	}
}

// SetClock overrides the time source. Intended for tests.
func (c *CatalogService) SetClock(now func() time.Time) {
	c.now = now
}

func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (c *CatalogService) observe(op string, start time.Time, err error) {
	c.metrics.RecordOperation(op, outcome(err), time.Since(start))
}

// ============================================================================
// Upload
// ============================================================================

// Upload stores r as owner's file named filename.
//
// The content is streamed to a fresh blob (hashing and sniffing its type on
// the way) before the record is created, so a record never points at
// missing content. New files are private.
//
// Parameters:
//   - ctx: Context for cancellation
//   - owner: Username of the uploader
//   - filename: Name in the owner's namespace
//   - r: File content
//
// Returns:
//   - *metadata.FileRecord: The created (or, under the replace policy, updated) record
//   - error: InvalidInput, DuplicateFilename, or StorageFailure
func (c *CatalogService) Upload(ctx context.Context, owner, filename string, r io.Reader) (rec *metadata.FileRecord, err error) {
	const op = "catalog.upload"
	defer func(start time.Time) { c.observe("upload", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Validate before touching any store
	// ========================================================================

	if owner == "" {
		return nil, newError(KindInvalidInput, op, "owner is required", nil)
	}
	if err := blob.ValidateFilename(filename, c.cfg.MaxFilenameLength); err != nil {
		return nil, newError(KindInvalidInput, op, "invalid filename", err)
	}

	if c.cfg.CollisionPolicy == CollisionReject {
		if _, err := c.meta.GetFileByName(ctx, owner, filename); err == nil {
			return nil, newError(KindDuplicateFilename, op, "a file with this name already exists", nil)
		} else if !metadata.IsNotFound(err) {
			return nil, fromStore(op, err)
		}
	}

	// ========================================================================
	// Step 2: Stream content into a new blob
	// ========================================================================

	ref, err := blob.NewRef(owner, filename)
	if err != nil {
		return nil, newError(KindInvalidInput, op, "invalid filename", err)
	}

	stream, err := newUploadStream(r, c.cfg.MaxUploadSize)
	if err != nil {
		return nil, newError(KindStorageFailure, op, "failed to read upload", err)
	}

	size, err := c.blobs.Put(ctx, ref, stream)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return nil, newError(KindInvalidInput, op,
				fmt.Sprintf("file exceeds maximum size of %d bytes", c.cfg.MaxUploadSize), nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fromStore(op, err)
	}
	c.metrics.RecordBytes("upload", size)

	// ========================================================================
	// Step 3: Publish the record
	// ========================================================================

	now := c.now()
	rec = &metadata.FileRecord{
		Owner:       owner,
		Filename:    filename,
		ContentRef:  ref,
		Size:        size,
		Checksum:    stream.Checksum(),
		ContentType: stream.ContentType(),
		IsPrivate:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch c.cfg.CollisionPolicy {
	case CollisionRename:
		err = c.createWithSuffix(ctx, rec)
	case CollisionReplace:
		rec, err = c.createOrReplace(ctx, rec)
	default:
		err = c.meta.CreateFile(ctx, rec)
	}
	if err != nil {
		return nil, c.discardBlob(op, owner, 0, ref, fromStore(op, err))
	}

	logger.Debug("Uploaded file: owner=%s id=%d name=%q size=%d", owner, rec.ID, rec.Filename, rec.Size)
	return rec, nil
}

// createWithSuffix creates rec, appending " (n)" to the name while it
// collides.
func (c *CatalogService) createWithSuffix(ctx context.Context, rec *metadata.FileRecord) error {
	base := rec.Filename
	for i := 0; i <= maxRenameCandidates; i++ {
		candidate := suffixedName(base, i)
		if blob.ValidateFilename(candidate, c.cfg.MaxFilenameLength) != nil {
			break
		}
		rec.Filename = candidate

		err := c.meta.CreateFile(ctx, rec)
		if field, ok := metadata.IsAlreadyExists(err); ok && field == metadata.FieldFilename {
			continue
		}
		return err
	}
	rec.Filename = base
	return metadata.NewAlreadyExistsError(metadata.FieldFilename)
}

// createOrReplace creates rec or, if the name is taken, swaps the existing
// record onto rec's content and deletes the content it replaced.
func (c *CatalogService) createOrReplace(ctx context.Context, rec *metadata.FileRecord) (*metadata.FileRecord, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := c.meta.CreateFile(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if field, ok := metadata.IsAlreadyExists(err); !ok || field != metadata.FieldFilename {
			return nil, err
		}

		existing, err := c.meta.GetFileByName(ctx, rec.Owner, rec.Filename)
		if metadata.IsNotFound(err) {
			continue // deleted in between; try to create again
		}
		if err != nil {
			return nil, err
		}

		updated, err := c.meta.ReplaceFileContent(ctx, existing.ID, existing.ContentRef, metadata.FileContent{
			ContentRef:  rec.ContentRef,
			Size:        rec.Size,
			Checksum:    rec.Checksum,
			ContentType: rec.ContentType,
		})
		if metadata.IsConflict(err) || metadata.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		c.releaseBlob("catalog.upload", existing.Owner, existing.ID, existing.ContentRef)
		return updated, nil
	}
	return nil, metadata.NewConflictError("file changed concurrently, giving up")
}

// suffixedName returns name for n == 0 and "stem (n).ext" otherwise.
// A leading dot is part of the stem, so ".env" becomes ".env (1)".
func suffixedName(name string, n int) string {
	if n == 0 {
		return name
	}
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// ============================================================================
// Rename
// ============================================================================

// Rename gives owner's file a new name.
//
// The blob key embeds the filename, so a rename copies the content to a key
// derived from the new name, swaps the record onto it with a
// compare-and-swap on the old key, and only then deletes the old blob. If the
// swap fails the copy is deleted and the file is untouched. Renaming a file
// to its current name is a no-op.
//
// Returns:
//   - error: InvalidInput, NotFound, Forbidden, DuplicateFilename, or StorageFailure
func (c *CatalogService) Rename(ctx context.Context, owner string, fileID int64, newName string) (err error) {
	const op = "catalog.rename"
	defer func(start time.Time) { c.observe("rename", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateFilename(newName, c.cfg.MaxFilenameLength); err != nil {
		return newError(KindInvalidInput, op, "invalid filename", err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		rec, err := c.ownedFile(ctx, op, owner, fileID)
		if err != nil {
			return err
		}
		if rec.Filename == newName {
			return nil
		}

		if other, err := c.meta.GetFileByName(ctx, owner, newName); err == nil && other.ID != fileID {
			return newError(KindDuplicateFilename, op, "a file with this name already exists", nil)
		} else if err != nil && !metadata.IsNotFound(err) {
			return fromStore(op, err)
		}

		// ====================================================================
		// Phase 1: copy content to the new key
		// ====================================================================

		newRef, err := blob.NewRef(owner, newName)
		if err != nil {
			return newError(KindInvalidInput, op, "invalid filename", err)
		}
		if _, err := blob.CopyBlob(ctx, c.blobs, rec.ContentRef, newRef); err != nil {
			if errors.Is(err, blob.ErrBlobNotFound) {
				// The record moved on (concurrent rename or replace); reread it.
				continue
			}
			return c.discardBlob(op, owner, fileID, newRef, fromStore(op, err))
		}

		// ====================================================================
		// Phase 2: swap the record onto the new key
		// ====================================================================

		_, err = c.meta.RenameFile(ctx, fileID, rec.ContentRef, newName, newRef)
		if metadata.IsConflict(err) {
			if discardErr := c.discardBlob(op, owner, fileID, newRef, nil); discardErr != nil {
				return discardErr
			}
			continue
		}
		if err != nil {
			return c.discardBlob(op, owner, fileID, newRef, fromStore(op, err))
		}

		// ====================================================================
		// Phase 3: drop the old content
		// ====================================================================

		c.releaseBlob(op, owner, fileID, rec.ContentRef)
		logger.Debug("Renamed file: owner=%s id=%d %q -> %q", owner, fileID, rec.Filename, newName)
		return nil
	}

	return newError(KindStorageFailure, op, "file changed concurrently, giving up", nil)
}

// ============================================================================
// Delete / TogglePrivacy
// ============================================================================

// Delete removes owner's file.
//
// The record goes first so the file disappears atomically for every reader;
// the blob is deleted afterwards. If that fails the error is reported as
// StorageFailure and the orphan is left for the garbage collector.
func (c *CatalogService) Delete(ctx context.Context, owner string, fileID int64) (err error) {
	const op = "catalog.delete"
	defer func(start time.Time) { c.observe("delete", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.ownedFile(ctx, op, owner, fileID); err != nil {
		return err
	}

	deleted, err := c.meta.DeleteFile(ctx, fileID)
	if err != nil {
		return fromStore(op, err)
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := c.blobs.Delete(cleanupCtx, deleted.ContentRef); err != nil {
		logger.Error("Delete: record removed but blob remains: owner=%s file_id=%d ref=%s: %v",
			owner, fileID, deleted.ContentRef, err)
		return newError(KindStorageFailure, op, "file removed but content cleanup failed", err)
	}

	logger.Debug("Deleted file: owner=%s id=%d name=%q", owner, fileID, deleted.Filename)
	return nil
}

// TogglePrivacy flips the file's private flag and returns the new value.
func (c *CatalogService) TogglePrivacy(ctx context.Context, owner string, fileID int64) (isPrivate bool, err error) {
	const op = "catalog.toggle_privacy"
	defer func(start time.Time) { c.observe("toggle_privacy", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := c.ownedFile(ctx, op, owner, fileID); err != nil {
		return false, err
	}

	rec, err := c.meta.ToggleFilePrivacy(ctx, fileID)
	if err != nil {
		return false, fromStore(op, err)
	}
	return rec.IsPrivate, nil
}

// ============================================================================
// Queries
// ============================================================================

// List returns all of owner's files, by filename.
func (c *CatalogService) List(ctx context.Context, owner string) ([]*metadata.FileRecord, error) {
	return c.Search(ctx, owner, "")
}

// Search returns owner's files whose name contains query, ignoring case,
// by filename. An empty query lists everything.
func (c *CatalogService) Search(ctx context.Context, owner, query string) (files []*metadata.FileRecord, err error) {
	const op = "catalog.search"
	defer func(start time.Time) { c.observe("search", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, newError(KindInvalidInput, op, "owner is required", nil)
	}

	files, err = c.meta.ListFiles(ctx, owner, query)
	if err != nil {
		return nil, fromStore(op, err)
	}
	return files, nil
}

// Get returns the record of owner's file.
func (c *CatalogService) Get(ctx context.Context, owner string, fileID int64) (rec *metadata.FileRecord, err error) {
	defer func(start time.Time) { c.observe("get", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.ownedFile(ctx, "catalog.get", owner, fileID)
}

// Download opens owner's file for reading. The caller must close the reader.
//
// A concurrent rename or replace can delete the blob between reading the
// record and opening the content; in that case the record is read again and
// the open retried once.
func (c *CatalogService) Download(ctx context.Context, owner string, fileID int64) (rc io.ReadCloser, rec *metadata.FileRecord, err error) {
	const op = "catalog.download"
	defer func(start time.Time) { c.observe("download", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		rec, err = c.ownedFile(ctx, op, owner, fileID)
		if err != nil {
			return nil, nil, err
		}

		rc, err = c.blobs.Get(ctx, rec.ContentRef)
		if err == nil {
			return newCountingReader(rc, c.metrics, "download"), rec, nil
		}
		if !errors.Is(err, blob.ErrBlobNotFound) {
			return nil, nil, fromStore(op, err)
		}
	}

	logger.Error("Download: record without content: owner=%s file_id=%d ref=%s", owner, fileID, rec.ContentRef)
	return nil, nil, newError(KindStorageFailure, op, "file content is missing", blob.ErrBlobNotFound)
}

// ============================================================================
// Helpers
// ============================================================================

// ownedFile loads a record and checks that owner owns it.
func (c *CatalogService) ownedFile(ctx context.Context, op, owner string, fileID int64) (*metadata.FileRecord, error) {
	rec, err := c.meta.GetFile(ctx, fileID)
	if err != nil {
		return nil, fromStore(op, err)
	}
	if rec.Owner != owner {
		return nil, newError(KindForbidden, op, "file belongs to another user", nil)
	}
	return rec, nil
}

// discardBlob deletes a blob written by an operation that then failed.
//
// cause is the failure being compensated (nil when the caller only needs the
// cleanup). If the delete fails, the orphan is logged for reconciliation and
// both errors are returned as StorageFailure.
func (c *CatalogService) discardBlob(op, owner string, fileID int64, ref blob.Ref, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	delErr := c.blobs.Delete(ctx, ref)
	if delErr == nil {
		return cause
	}

	logger.Error("%s: failed to discard blob: owner=%s file_id=%d ref=%s: %v", op, owner, fileID, ref, delErr)

	var merr *multierror.Error
	if cause != nil {
		merr = multierror.Append(merr, cause)
	}
	merr = multierror.Append(merr, fmt.Errorf("discard blob %s: %w", ref, delErr))
	return newError(KindStorageFailure, op, "operation failed and cleanup did not complete", merr.ErrorOrNil())
}

// releaseBlob deletes content no longer referenced after a committed change.
// Failure only leaves an orphan for the garbage collector.
func (c *CatalogService) releaseBlob(op, owner string, fileID int64, ref blob.Ref) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := c.blobs.Delete(ctx, ref); err != nil {
		logger.Warn("%s: old blob not deleted, left for gc: owner=%s file_id=%d ref=%s: %v",
			op, owner, fileID, ref, err)
	}
}

// countingReader reports the bytes read through it when closed.
type countingReader struct {
	io.ReadCloser
	metrics   metrics.ServiceMetrics
	direction string
	n         int64
}

func newCountingReader(rc io.ReadCloser, m metrics.ServiceMetrics, direction string) io.ReadCloser {
	return &countingReader{ReadCloser: rc, metrics: m, direction: direction}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) Close() error {
	c.metrics.RecordBytes(c.direction, c.n)
	return c.ReadCloser.Close()
}
