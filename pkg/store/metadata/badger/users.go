package badger

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

func (s *BadgerMetadataStore) CreateUser(ctx context.Context, user *metadata.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := nextID(s.userSeq)
	if err != nil {
		return metadata.NewIOError("allocate user id", err)
	}
	email := metadata.NormalizeEmail(user.Email)

	err = s.update(ctx, "create user", func(txn *badger.Txn) error {
		if _, exists, err := getID(txn, keyUsername(user.Username)); err != nil {
			return err
		} else if exists {
			return metadata.NewAlreadyExistsError(metadata.FieldUsername)
		}
		if _, exists, err := getID(txn, keyEmail(email)); err != nil {
			return err
		} else if exists {
			return metadata.NewAlreadyExistsError(metadata.FieldEmail)
		}

		record := user.Clone()
		record.ID = id
		if err := setJSON(txn, keyUser(id), record); err != nil {
			return err
		}
		if err := txn.Set(keyUsername(user.Username), encodeID(id)); err != nil {
			return err
		}
		return txn.Set(keyEmail(email), encodeID(id))
	})
	if err != nil {
		return err
	}

	user.ID = id
	return nil
}

func (s *BadgerMetadataStore) GetUserByID(ctx context.Context, id int64) (*metadata.User, error) {
	var user metadata.User
	err := s.view(ctx, "get user", func(txn *badger.Txn) error {
		found, err := getJSON(txn, keyUser(id), &user)
		if err != nil {
			return err
		}
		if !found {
			return metadata.NewNotFoundError("user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BadgerMetadataStore) GetUserByUsername(ctx context.Context, username string) (*metadata.User, error) {
	var user metadata.User
	err := s.view(ctx, "get user", func(txn *badger.Txn) error {
		id, found, err := getID(txn, keyUsername(username))
		if err != nil {
			return err
		}
		if !found {
			return metadata.NewNotFoundError("user")
		}
		found, err = getJSON(txn, keyUser(id), &user)
		if err != nil {
			return err
		}
		if !found {
			return metadata.NewNotFoundError("user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
