// Package gc reclaims storage no longer referenced by metadata.
//
// Two kinds of garbage accumulate in DittoBox:
//   - Orphaned blobs: content whose record is gone or was moved to a new
//     ref, left behind when a cleanup delete failed or the process died
//     between a metadata change and the matching blob delete
//   - Expired share tokens: rows past their expiry, already unusable since
//     expiry is checked on every resolve, that only take up space
//
// The collector works with any blob store implementing blob.Lister and any
// metadata store.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// Collector performs periodic garbage collection.
//
// Thread Safety: Safe for concurrent use. Runs are serialized; a RunNow
// issued while the periodic worker is collecting waits for it.
type Collector struct {
	blobs   blob.BlobStore
	lister  blob.Lister
	meta    metadata.MetadataStore
	config  Config
	metrics metrics.GCMetrics
	now     func() time.Time

	runMu sync.Mutex // serializes runs

	lifeMu   sync.Mutex // guards started
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether the periodic worker runs (RunNow always works)
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run garbage collection (default: 1h)
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`

	// GracePeriod protects recently written blobs (default: 1h). An upload
	// writes its blob before the record that references it, so a young
	// unreferenced blob may belong to an upload still in flight.
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"min=0"`

	// BatchSize is how many orphaned blobs to delete per batch (default: 1000)
	BatchSize int `mapstructure:"batch_size" validate:"min=0"`

	// DryRun logs what would be deleted without deleting anything
	DryRun bool `mapstructure:"dry_run"`

	// RunTimeout bounds each periodic run (default: 10m)
	RunTimeout time.Duration `mapstructure:"run_timeout" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
}

// NewCollector creates a new garbage collector.
//
// The collector will be initialized but not started. Call Start() to begin
// background garbage collection.
//
// Parameters:
//   - blobs: Blob store to scan; must implement blob.Lister
//   - meta: Metadata store holding the referenced refs and share tokens
//   - config: Garbage collection configuration
//   - m: Metrics sink; nil records nothing
//
// Returns:
//   - *Collector: Initialized collector (not started)
//   - error: If the blob store cannot list its contents
func NewCollector(blobs blob.BlobStore, meta metadata.MetadataStore, config Config, m metrics.GCMetrics) (*Collector, error) {
	lister, ok := blobs.(blob.Lister)
	if !ok {
		return nil, fmt.Errorf("blob store does not implement blob.Lister")
	}
	config.applyDefaults()
	if m == nil {
		m = metrics.NewNoopGCMetrics()
	}

	return &Collector{
		blobs:   blobs,
		lister:  lister,
		meta:    meta,
		config:  config,
		metrics: m,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// SetClock overrides the time source. Intended for tests.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Start begins background garbage collection. No-op when disabled or
// already started.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.started {
		return
	}
	c.started = true

	logger.Info("Starting garbage collector: interval=%s grace=%s batch_size=%d dry_run=%v",
		c.config.Interval, c.config.GracePeriod, c.config.BatchSize, c.config.DryRun)

	go c.worker()
}

// Stop stops the worker and waits for an in-progress run to finish or ctx
// to expire. Safe to call multiple times, and before Start.
func (c *Collector) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	started := c.started
	c.lifeMu.Unlock()
	if !started {
		return nil
	}

	logger.Info("Stopping garbage collector...")
	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate collection and blocks until it completes.
//
// Returns:
//   - *Stats: Collection statistics (partial on error)
//   - error: If listing fails or ctx is cancelled
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.RunTimeout)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single garbage collection run:
//  1. List blobs (before reading references, so a blob published and
//     referenced in between is never seen as orphaned)
//  2. Read every ref referenced by a file record
//  3. Delete unreferenced blobs older than the grace period, in batches
//  4. Sweep expired share tokens
func (c *Collector) collect(ctx context.Context) (stats *Stats, err error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats = &Stats{StartTime: c.now()}
	defer func() {
		stats.EndTime = c.now()
		c.metrics.RecordRun(stats.Duration(), stats.DeletedCount, stats.FailedCount, stats.ExpiredTokens, err)
	}()

	// ========================================================================
	// Phase 1: Blobs present in the store
	// ========================================================================

	existing, err := c.lister.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list blobs: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	// ========================================================================
	// Phase 2: Refs referenced by metadata
	// ========================================================================

	referenced, err := c.meta.ListContentRefs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list referenced refs: %w", err)
	}
	stats.ReferencedCount = uint64(len(referenced))

	referencedSet := make(map[blob.Ref]struct{}, len(referenced))
	for _, ref := range referenced {
		referencedSet[ref] = struct{}{}
	}

	cutoff := stats.StartTime.Add(-c.config.GracePeriod)
	var orphaned []blob.Ref
	for _, info := range existing {
		if _, ok := referencedSet[info.Ref]; ok {
			continue
		}
		if info.ModTime.After(cutoff) {
			stats.YoungCount++
			continue
		}
		orphaned = append(orphaned, info.Ref)
	}
	stats.OrphanedCount = uint64(len(orphaned))

	logger.Debug("GC: existing=%d referenced=%d orphaned=%d young=%d",
		stats.ExistingCount, stats.ReferencedCount, stats.OrphanedCount, stats.YoungCount)

	// ========================================================================
	// Phase 3: Delete orphans
	// ========================================================================

	if c.config.DryRun {
		for i, ref := range orphaned {
			if i == 10 {
				logger.Info("GC: DRY RUN - ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("GC: DRY RUN - would delete %s", ref)
		}
	} else {
		for i := 0; i < len(orphaned); i += c.config.BatchSize {
			end := min(i+c.config.BatchSize, len(orphaned))
			batch := orphaned[i:end]

			failures, err := blob.DeleteBlobs(ctx, c.blobs, batch)
			stats.DeletedCount += uint64(len(batch) - len(failures))
			stats.FailedCount += uint64(len(failures))
			for ref, ferr := range failures {
				logger.Debug("GC: failed to delete %s: %v", ref, ferr)
			}
			if err != nil {
				return stats, err
			}
		}
	}

	// ========================================================================
	// Phase 4: Expired share tokens
	// ========================================================================

	if !c.config.DryRun {
		swept, err := c.meta.DeleteExpiredShareTokens(ctx, stats.StartTime)
		if err != nil {
			return stats, fmt.Errorf("failed to sweep share tokens: %w", err)
		}
		stats.ExpiredTokens = uint64(swept)
	}

	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time // When collection started
	EndTime         time.Time // When collection ended
	ExistingCount   uint64    // Blobs in the store
	ReferencedCount uint64    // Refs referenced by file records
	OrphanedCount   uint64    // Unreferenced blobs past the grace period
	YoungCount      uint64    // Unreferenced blobs still within the grace period
	DeletedCount    uint64    // Orphans deleted
	FailedCount     uint64    // Orphans that failed to delete
	ExpiredTokens   uint64    // Expired share tokens removed
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("existing=%d referenced=%d orphaned=%d young=%d deleted=%d failed=%d tokens=%d duration=%s",
		s.ExistingCount, s.ReferencedCount, s.OrphanedCount, s.YoungCount,
		s.DeletedCount, s.FailedCount, s.ExpiredTokens, s.Duration())
}
