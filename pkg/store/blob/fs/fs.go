// Package fs implements filesystem-based blob storage for DittoBox.
//
// Blobs are stored as regular files under a base directory, one file per ref
// ("<base>/<owner>/<uuid>-<name>"). Writes go to a temporary file in the
// destination directory which is fsynced and atomically renamed into place,
// so readers only ever observe complete blobs.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/store/blob"
)

// tempPrefix marks in-flight uploads. Refs created by blob.NewRef start with
// a UUID, so they never collide with it.
const tempPrefix = ".tmp-"

// FSBlobStore implements blob.BlobStore on the local filesystem.
//
// Implemented Interfaces:
//   - blob.BlobStore
//   - blob.Copier (hard links, falling back to a streamed copy)
//   - blob.Lister
//
// Thread Safety:
// Safe for concurrent use. Every Put writes to its own temporary file and
// publishes it with rename(2), which is atomic within a filesystem.
type FSBlobStore struct {
	basePath string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// FSBlobStoreConfig configures a filesystem blob store.
type FSBlobStoreConfig struct {
	// BasePath is the root directory for blobs. Created if missing.
	BasePath string

	// DirPerm is the permission for created directories (default 0750).
	DirPerm os.FileMode

	// FilePerm is the permission for blob files (default 0640).
	FilePerm os.FileMode
}

// NewFSBlobStore creates a filesystem blob store rooted at cfg.BasePath.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Store configuration
//
// Returns:
//   - *FSBlobStore: Initialized store
//   - error: If the base directory cannot be created or ctx is cancelled
func NewFSBlobStore(ctx context.Context, cfg FSBlobStoreConfig) (*FSBlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("base path is required")
	}
	if cfg.DirPerm == 0 {
		cfg.DirPerm = 0750
	}
	if cfg.FilePerm == 0 {
		cfg.FilePerm = 0640
	}

	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, cfg.DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSBlobStore{
		basePath: abs,
		dirPerm:  cfg.DirPerm,
		filePerm: cfg.FilePerm,
	}, nil
}

// getFilePath maps a ref to its location below the base directory.
func (s *FSBlobStore) getFilePath(ref blob.Ref) (string, error) {
	if err := blob.ValidateRef(ref); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(string(ref))), nil
}

// Put writes the blob atomically.
//
// Steps: create a temp file next to the destination, stream r into it,
// fsync, rename over the destination, fsync the directory. The temp file is
// removed on any failure.
func (s *FSBlobStore) Put(ctx context.Context, ref blob.Ref, r io.Reader) (int64, error) {
	// ========================================================================
	// Step 1: Validate and prepare the destination directory
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dest, err := s.getFilePath(ref)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	// ========================================================================
	// Step 2: Stream into a temporary file
	// ========================================================================

	tmpPath := filepath.Join(dir, tempPrefix+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.filePerm)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logger.Warn("fs blob store: failed to remove temp file %s: %v", tmpPath, rmErr)
		}
	}

	n, err := io.Copy(f, &contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to write blob %s: %w", ref, err)
	}

	// ========================================================================
	// Step 3: Make the data durable, then publish
	// ========================================================================

	if err := f.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to sync blob %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to close blob %s: %w", ref, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to publish blob %s: %w", ref, err)
	}
	if err := syncDir(dir); err != nil {
		return 0, fmt.Errorf("failed to sync directory for %s: %w", ref, err)
	}

	return n, nil
}

func (s *FSBlobStore) Get(ctx context.Context, ref blob.Ref) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.getFilePath(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("get %s: %w", ref, blob.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", ref, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat blob %s: %w", ref, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("get %s: %w", ref, blob.ErrBlobNotFound)
	}

	return f, nil
}

func (s *FSBlobStore) Delete(ctx context.Context, ref blob.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.getFilePath(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", ref, err)
	}
	return nil
}

func (s *FSBlobStore) Exists(ctx context.Context, ref blob.Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := s.getFilePath(ref)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob %s: %w", ref, err)
	}
	return !info.IsDir(), nil
}

// Copy hard-links src to dst. Blobs are never modified in place (Put always
// renames a new inode over the key), so sharing an inode is safe. When the
// link fails the content is streamed instead.
//
// The link is stamped with the current time: a linked dst would otherwise
// carry the source's original upload time, and the garbage collector would
// treat a not-yet-referenced copy as an old orphan.
func (s *FSBlobStore) Copy(ctx context.Context, src, dst blob.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath, err := s.getFilePath(src)
	if err != nil {
		return err
	}
	dstPath, err := s.getFilePath(dst)
	if err != nil {
		return err
	}

	if _, err := os.Stat(srcPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("copy %s: %w", src, blob.ErrBlobNotFound)
		}
		return fmt.Errorf("failed to stat blob %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), s.dirPerm); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	linkErr := os.Link(srcPath, dstPath)
	if linkErr == nil {
		now := time.Now()
		if err := os.Chtimes(dstPath, now, now); err != nil {
			_ = os.Remove(dstPath)
			return fmt.Errorf("failed to stamp blob %s: %w", dst, err)
		}
		return syncDir(filepath.Dir(dstPath))
	}
	logger.Debug("fs blob store: hard link %s -> %s failed, streaming copy: %v", src, dst, linkErr)

	r, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	_, err = s.Put(ctx, dst, r)
	return err
}

// List walks the base directory and returns every published blob.
// In-flight temporary files are skipped.
func (s *FSBlobStore) List(ctx context.Context) ([]blob.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []blob.BlobInfo
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		infos = append(infos, blob.BlobInfo{
			Ref:     blob.Ref(filepath.ToSlash(rel)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Ref < infos[j].Ref })
	return infos, nil
}

// Healthcheck verifies the base directory is still present and a directory.
func (s *FSBlobStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("blob directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob path %s is not a directory", s.basePath)
	}
	return nil
}

func (s *FSBlobStore) Close() error {
	return nil
}

// BasePath returns the absolute root directory of the store.
func (s *FSBlobStore) BasePath() string {
	return s.basePath
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

// contextReader aborts a long copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
