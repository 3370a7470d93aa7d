package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

func (s *PostgresMetadataStore) CreateShareToken(ctx context.Context, token *metadata.ShareToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO share_tokens (token_hash, file_id, owner, filename, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		token.TokenHash, token.FileID, token.Owner, token.Filename, token.IssuedAt, token.ExpiresAt)
	return translateError("create share token", err)
}

func (s *PostgresMetadataStore) GetShareToken(ctx context.Context, tokenHash string) (*metadata.ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var t metadata.ShareToken
	err := s.pool.QueryRow(ctx, `
		SELECT token_hash, file_id, owner, filename, issued_at, expires_at
		FROM share_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&t.TokenHash, &t.FileID, &t.Owner, &t.Filename, &t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, metadata.NewNotFoundError("share token")
		}
		return nil, translateError("get share token", err)
	}
	t.IssuedAt = t.IssuedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return &t, nil
}

func (s *PostgresMetadataStore) DeleteShareToken(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM share_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return translateError("delete share token", err)
	}
	if tag.RowsAffected() == 0 {
		return metadata.NewNotFoundError("share token")
	}
	return nil
}

func (s *PostgresMetadataStore) DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM share_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, translateError("delete expired share tokens", err)
	}
	return int(tag.RowsAffected()), nil
}
