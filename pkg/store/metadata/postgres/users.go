package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

const userColumns = `id, username, email, password_hash, created_at`

func scanUser(row pgx.Row) (*metadata.User, error) {
	var u metadata.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, metadata.NewNotFoundError("user")
		}
		return nil, translateError("scan user", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *PostgresMetadataStore) CreateUser(ctx context.Context, user *metadata.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		user.Username, metadata.NormalizeEmail(user.Email), user.PasswordHash, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return translateError("create user", err)
	}
	return nil
}

func (s *PostgresMetadataStore) GetUserByID(ctx context.Context, id int64) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresMetadataStore) GetUserByUsername(ctx context.Context, username string) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}
