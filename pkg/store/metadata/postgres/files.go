package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

const fileColumns = `id, owner, filename, content_ref, size, checksum, content_type, is_private, created_at, updated_at`

func scanFile(row pgx.Row) (*metadata.FileRecord, error) {
	var (
		f   metadata.FileRecord
		ref string
	)
	err := row.Scan(&f.ID, &f.Owner, &f.Filename, &ref, &f.Size, &f.Checksum,
		&f.ContentType, &f.IsPrivate, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, metadata.NewNotFoundError("file")
		}
		return nil, translateError("scan file", err)
	}
	f.ContentRef = blob.Ref(ref)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

func (s *PostgresMetadataStore) CreateFile(ctx context.Context, file *metadata.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	query := `
		INSERT INTO files (owner, filename, content_ref, size, checksum, content_type,
			is_private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		file.Owner, file.Filename, string(file.ContentRef), file.Size, file.Checksum,
		file.ContentType, file.IsPrivate, file.CreatedAt, file.UpdatedAt,
	).Scan(&file.ID)
	if err != nil {
		return translateError("create file", err)
	}
	return nil
}

func (s *PostgresMetadataStore) GetFile(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanFile(s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
}

func (s *PostgresMetadataStore) GetFileByName(ctx context.Context, owner, filename string) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanFile(s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE owner = $1 AND filename = $2`, owner, filename))
}

// ListFiles uses strpos rather than ILIKE so '%' and '_' in the query are
// matched literally. COLLATE "C" gives the same byte order as the other
// backends.
func (s *PostgresMetadataStore) ListFiles(ctx context.Context, owner, query string) ([]*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sql := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE owner = $1 AND ($2 = '' OR strpos(lower(filename), lower($2)) > 0)
		ORDER BY filename COLLATE "C" ASC`

	rows, err := s.pool.Query(ctx, sql, owner, query)
	if err != nil {
		return nil, translateError("list files", err)
	}
	defer rows.Close()

	result := make([]*metadata.FileRecord, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, file)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("list files", err)
	}
	return result, nil
}

// lockFileRef locks the row and verifies its content ref.
func lockFileRef(ctx context.Context, tx DBTX, id int64, expectedRef blob.Ref) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT content_ref FROM files WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return metadata.NewNotFoundError("file")
		}
		return translateError("lock file", err)
	}
	if blob.Ref(current) != expectedRef {
		return metadata.NewConflictError("file content changed concurrently")
	}
	return nil
}

func (s *PostgresMetadataStore) RenameFile(ctx context.Context, id int64, expectedRef blob.Ref, newName string, newRef blob.Ref) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var renamed *metadata.FileRecord
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if err := lockFileRef(ctx, tx, id, expectedRef); err != nil {
			return err
		}

		var err error
		renamed, err = scanFile(tx.QueryRow(ctx, `
			UPDATE files SET filename = $2, content_ref = $3, updated_at = now()
			WHERE id = $1
			RETURNING `+fileColumns, id, newName, string(newRef)))
		return err
	})
	if err != nil {
		return nil, translateError("rename file", err)
	}
	return renamed, nil
}

func (s *PostgresMetadataStore) ReplaceFileContent(ctx context.Context, id int64, expectedRef blob.Ref, content metadata.FileContent) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var replaced *metadata.FileRecord
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if err := lockFileRef(ctx, tx, id, expectedRef); err != nil {
			return err
		}

		var err error
		replaced, err = scanFile(tx.QueryRow(ctx, `
			UPDATE files SET content_ref = $2, size = $3, checksum = $4, content_type = $5, updated_at = now()
			WHERE id = $1
			RETURNING `+fileColumns,
			id, string(content.ContentRef), content.Size, content.Checksum, content.ContentType))
		return err
	})
	if err != nil {
		return nil, translateError("replace file content", err)
	}
	return replaced, nil
}

func (s *PostgresMetadataStore) ToggleFilePrivacy(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanFile(s.pool.QueryRow(ctx, `
		UPDATE files SET is_private = NOT is_private, updated_at = now()
		WHERE id = $1
		RETURNING `+fileColumns, id))
}

func (s *PostgresMetadataStore) DeleteFile(ctx context.Context, id int64) (*metadata.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanFile(s.pool.QueryRow(ctx, `DELETE FROM files WHERE id = $1 RETURNING `+fileColumns, id))
}

func (s *PostgresMetadataStore) ListContentRefs(ctx context.Context) ([]blob.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT content_ref FROM files`)
	if err != nil {
		return nil, translateError("list content refs", err)
	}
	defer rows.Close()

	refs := make([]blob.Ref, 0)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, translateError("list content refs", err)
		}
		refs = append(refs, blob.Ref(ref))
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("list content refs", err)
	}
	return refs, nil
}
