package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// maxTxnRetries bounds how often a conflicting transaction is replayed.
const maxTxnRetries = 16

// sequenceBandwidth is how many IDs a sequence leases at a time. Leased but
// unused IDs are skipped after a restart, which is harmless since IDs only
// need to be unique.
const sequenceBandwidth = 64

// BadgerMetadataStore implements metadata.MetadataStore using BadgerDB.
//
// This implementation provides persistent metadata backed by an embedded
// key-value store. It is suitable for:
//   - Single-node production deployments that need persistence
//   - Deployments where running PostgreSQL is not worth it
//
// Key Features:
//   - Crash-safe storage (WAL-based)
//   - Uniqueness through index keys written in the same transaction
//   - Compare-and-swap updates replayed on transaction conflicts
//   - Ordered per-owner listings from a prefix scan
//
// Thread Safety:
// BadgerDB transactions are serializable (SSI). Two transactions that read
// and write the same key cannot both commit; the loser gets
// badger.ErrConflict and is replayed against the new state by update().
// The store therefore needs no mutex of its own.
type BadgerMetadataStore struct {
	db      *badger.DB
	userSeq *badger.Sequence
	fileSeq *badger.Sequence
}

// BadgerMetadataStoreConfig contains configuration for the BadgerDB store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests only)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerMetadataStore opens (or creates) a BadgerDB metadata store.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Database path and cache sizing
//
// Returns:
//   - *BadgerMetadataStore: A store ready for concurrent use
//   - error: If the database cannot be opened or ctx is cancelled
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("db_path is required")
	}

	// ========================================================================
	// Step 1: Prepare options for a small-record metadata workload
	// ========================================================================

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	// ========================================================================
	// Step 2: Open the database and the ID sequences
	// ========================================================================

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	userSeq, err := db.GetSequence([]byte(keyUserSequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open user sequence: %w", err)
	}
	fileSeq, err := db.GetSequence([]byte(keyFileSequence), sequenceBandwidth)
	if err != nil {
		_ = userSeq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("failed to open file sequence: %w", err)
	}

	return &BadgerMetadataStore{db: db, userSeq: userSeq, fileSeq: fileSeq}, nil
}

// update runs fn in a read-write transaction, replaying it when Badger
// reports a conflict with a concurrent transaction.
func (s *BadgerMetadataStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			var storeErr *metadata.StoreError
			if errors.As(err, &storeErr) {
				return err
			}
			return metadata.NewIOError(op, err)
		}
		if attempt >= maxTxnRetries {
			logger.Warn("badger: %s still conflicting after %d attempts", op, attempt)
			return metadata.NewIOError(op, err)
		}
		time.Sleep(time.Duration(attempt) * time.Millisecond)
	}
}

// view runs fn in a read-only transaction.
func (s *BadgerMetadataStore) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(fn)
	if err == nil {
		return nil
	}
	var storeErr *metadata.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return metadata.NewIOError(op, err)
}

// nextID draws from seq. Sequences start at zero; IDs start at one.
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// getJSON loads key into v. Returns (false, nil) when the key is absent.
func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// getID loads an index key. Returns (0, false, nil) when absent.
func getID(txn *badger.Txn, key []byte) (int64, bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	var id int64
	err = item.Value(func(val []byte) error {
		var decodeErr error
		id, decodeErr = decodeID(val)
		return decodeErr
	})
	return id, err == nil, err
}

// Healthcheck verifies the database is open and readable.
func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyUserSequence))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close releases the sequences and closes the database.
func (s *BadgerMetadataStore) Close() error {
	var result *multierror.Error
	if err := s.userSeq.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release user sequence: %w", err))
	}
	if err := s.fileSeq.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release file sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close database: %w", err))
	}
	return result.ErrorOrNil()
}
