package memory

import (
	"context"

	"github.com/marmos91/dittobox/pkg/store/metadata"
)

func (s *MemoryMetadataStore) CreateUser(ctx context.Context, user *metadata.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[user.Username]; ok {
		return metadata.NewAlreadyExistsError(metadata.FieldUsername)
	}
	email := metadata.NormalizeEmail(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return metadata.NewAlreadyExistsError(metadata.FieldEmail)
	}

	s.nextUserID++
	user.ID = s.nextUserID

	s.users[user.ID] = user.Clone()
	s.byUsername[user.Username] = user.ID
	s.byEmail[email] = user.ID
	return nil
}

func (s *MemoryMetadataStore) GetUserByID(ctx context.Context, id int64) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, metadata.NewNotFoundError("user")
	}
	return user.Clone(), nil
}

func (s *MemoryMetadataStore) GetUserByUsername(ctx context.Context, username string) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, metadata.NewNotFoundError("user")
	}
	return s.users[id].Clone(), nil
}
