package badger

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

func (s *BadgerMetadataStore) CreateFile(ctx context.Context, file *metadata.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := nextID(s.fileSeq)
	if err != nil {
		return metadata.NewIOError("allocate file id", err)
	}

	err = s.update(ctx, "create file", func(txn *badger.Txn) error {
		nameKey := keyFileName(file.Owner, file.Filename)
		if _, exists, err := getID(txn, nameKey); err != nil {
			return err
		} else if exists {
			return metadata.NewAlreadyExistsError(metadata.FieldFilename)
		}

		record := file.Clone()
		record.ID = id
		if err := setJSON(txn, keyFile(id), record); err != nil {
			return err
		}
		return txn.Set(nameKey, encodeID(id))
	})
	if err != nil {
		return err
	}

	file.ID = id
	return nil
}

// loadFile reads a record inside txn, returning ErrNotFound when absent.
func loadFile(txn *badger.Txn, id int64) (*metadata.FileRecord, error) {
	var file metadata.FileRecord
	found, err := getJSON(txn, keyFile(id), &file)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, metadata.NewNotFoundError("file")
	}
	return &file, nil
}

func (s *BadgerMetadataStore) GetFile(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	var file *metadata.FileRecord
	err := s.view(ctx, "get file", func(txn *badger.Txn) error {
		var err error
		file, err = loadFile(txn, id)
		return err
	})
	return file, err
}

func (s *BadgerMetadataStore) GetFileByName(ctx context.Context, owner, filename string) (*metadata.FileRecord, error) {
	var file *metadata.FileRecord
	err := s.view(ctx, "get file", func(txn *badger.Txn) error {
		id, found, err := getID(txn, keyFileName(owner, filename))
		if err != nil {
			return err
		}
		if !found {
			return metadata.NewNotFoundError("file")
		}
		file, err = loadFile(txn, id)
		return err
	})
	return file, err
}

// ListFiles scans the owner/name index, which is already ordered by filename.
func (s *BadgerMetadataStore) ListFiles(ctx context.Context, owner, query string) ([]*metadata.FileRecord, error) {
	result := make([]*metadata.FileRecord, 0)

	err := s.view(ctx, "list files", func(txn *badger.Txn) error {
		prefix := keyOwnerPrefix(owner)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			filename := string(item.Key()[len(prefix):])
			if !metadata.MatchesQuery(filename, query) {
				continue
			}

			var id int64
			if err := item.Value(func(val []byte) error {
				var decodeErr error
				id, decodeErr = decodeID(val)
				return decodeErr
			}); err != nil {
				return err
			}

			file, err := loadFile(txn, id)
			if err != nil {
				return err
			}
			result = append(result, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerMetadataStore) RenameFile(ctx context.Context, id int64, expectedRef blob.Ref, newName string, newRef blob.Ref) (*metadata.FileRecord, error) {
	var renamed *metadata.FileRecord

	err := s.update(ctx, "rename file", func(txn *badger.Txn) error {
		file, err := loadFile(txn, id)
		if err != nil {
			return err
		}
		if file.ContentRef != expectedRef {
			return metadata.NewConflictError("file content changed concurrently")
		}

		newKey := keyFileName(file.Owner, newName)
		if other, exists, err := getID(txn, newKey); err != nil {
			return err
		} else if exists && other != id {
			return metadata.NewAlreadyExistsError(metadata.FieldFilename)
		}

		if file.Filename != newName {
			if err := txn.Delete(keyFileName(file.Owner, file.Filename)); err != nil {
				return err
			}
			if err := txn.Set(newKey, encodeID(id)); err != nil {
				return err
			}
		}

		file.Filename = newName
		file.ContentRef = newRef
		file.UpdatedAt = time.Now().UTC()
		renamed = file
		return setJSON(txn, keyFile(id), file)
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

func (s *BadgerMetadataStore) ReplaceFileContent(ctx context.Context, id int64, expectedRef blob.Ref, content metadata.FileContent) (*metadata.FileRecord, error) {
	var replaced *metadata.FileRecord

	err := s.update(ctx, "replace file content", func(txn *badger.Txn) error {
		file, err := loadFile(txn, id)
		if err != nil {
			return err
		}
		if file.ContentRef != expectedRef {
			return metadata.NewConflictError("file content changed concurrently")
		}

		file.ContentRef = content.ContentRef
		file.Size = content.Size
		file.Checksum = content.Checksum
		file.ContentType = content.ContentType
		file.UpdatedAt = time.Now().UTC()
		replaced = file
		return setJSON(txn, keyFile(id), file)
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (s *BadgerMetadataStore) ToggleFilePrivacy(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	var toggled *metadata.FileRecord

	err := s.update(ctx, "toggle privacy", func(txn *badger.Txn) error {
		file, err := loadFile(txn, id)
		if err != nil {
			return err
		}

		file.IsPrivate = !file.IsPrivate
		file.UpdatedAt = time.Now().UTC()
		toggled = file
		return setJSON(txn, keyFile(id), file)
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}

func (s *BadgerMetadataStore) DeleteFile(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	var deleted *metadata.FileRecord

	err := s.update(ctx, "delete file", func(txn *badger.Txn) error {
		file, err := loadFile(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(keyFileName(file.Owner, file.Filename)); err != nil {
			return err
		}
		deleted = file
		return txn.Delete(keyFile(id))
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *BadgerMetadataStore) ListContentRefs(ctx context.Context) ([]blob.Ref, error) {
	refs := make([]blob.Ref, 0)

	err := s.view(ctx, "list content refs", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixFile), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var file metadata.FileRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &file)
			}); err != nil {
				return err
			}
			refs = append(refs, file.ContentRef)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
