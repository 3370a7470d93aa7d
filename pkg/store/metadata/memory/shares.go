package memory

import (
	"context"
	"time"

	"github.com/marmos91/dittobox/pkg/store/metadata"
)

func (s *MemoryMetadataStore) CreateShareToken(ctx context.Context, token *metadata.ShareToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.TokenHash]; ok {
		return metadata.NewAlreadyExistsError(metadata.FieldToken)
	}
	s.tokens[token.TokenHash] = token.Clone()
	return nil
}

func (s *MemoryMetadataStore) GetShareToken(ctx context.Context, tokenHash string) (*metadata.ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[tokenHash]
	if !ok {
		return nil, metadata.NewNotFoundError("share token")
	}
	return token.Clone(), nil
}

func (s *MemoryMetadataStore) DeleteShareToken(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[tokenHash]; !ok {
		return metadata.NewNotFoundError("share token")
	}
	delete(s.tokens, tokenHash)
	return nil
}

func (s *MemoryMetadataStore) DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, token := range s.tokens {
		if token.Expired(now) {
			delete(s.tokens, hash)
			removed++
		}
	}
	return removed, nil
}
