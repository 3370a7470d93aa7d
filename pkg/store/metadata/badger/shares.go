package badger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// deleteBatchSize bounds the keys removed per transaction by the expiry sweep.
const deleteBatchSize = 1000

func (s *BadgerMetadataStore) CreateShareToken(ctx context.Context, token *metadata.ShareToken) error {
	return s.update(ctx, "create share token", func(txn *badger.Txn) error {
		var existing metadata.ShareToken
		found, err := getJSON(txn, keyShareToken(token.TokenHash), &existing)
		if err != nil {
			return err
		}
		if found {
			return metadata.NewAlreadyExistsError(metadata.FieldToken)
		}
		return setJSON(txn, keyShareToken(token.TokenHash), token)
	})
}

func (s *BadgerMetadataStore) GetShareToken(ctx context.Context, tokenHash string) (*metadata.ShareToken, error) {
	var token metadata.ShareToken
	err := s.view(ctx, "get share token", func(txn *badger.Txn) error {
		found, err := getJSON(txn, keyShareToken(tokenHash), &token)
		if err != nil {
			return err
		}
		if !found {
			return metadata.NewNotFoundError("share token")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *BadgerMetadataStore) DeleteShareToken(ctx context.Context, tokenHash string) error {
	return s.update(ctx, "delete share token", func(txn *badger.Txn) error {
		key := keyShareToken(tokenHash)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return metadata.NewNotFoundError("share token")
			}
			return err
		}
		return txn.Delete(key)
	})
}

// DeleteExpiredShareTokens collects expired keys in a read transaction and
// deletes them in batches. Each batch re-checks expiry so a token that was
// concurrently recreated under the same hash is left alone.
func (s *BadgerMetadataStore) DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte

	err := s.view(ctx, "scan share tokens", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixShareToken), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var token metadata.ShareToken
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &token)
			}); err != nil {
				return err
			}
			if token.Expired(now) {
				expired = append(expired, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(expired); start += deleteBatchSize {
		batch := expired[start:min(start+deleteBatchSize, len(expired))]

		var batchRemoved int
		err := s.update(ctx, "delete expired share tokens", func(txn *badger.Txn) error {
			batchRemoved = 0
			for _, key := range batch {
				var token metadata.ShareToken
				found, err := getJSON(txn, key, &token)
				if err != nil {
					return err
				}
				if !found || !token.Expired(now) {
					continue
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				batchRemoved++
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += batchRemoved
	}

	return removed, nil
}
