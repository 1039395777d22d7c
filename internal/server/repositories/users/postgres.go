package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/dbx"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, username, email, fullname, avatar, cover_image, password_hash, refresh_token_hash, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u       models.User
		refresh sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage,
		&u.PasswordHash, &refresh, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if refresh.Valid {
		u.RefreshTokenHash = &refresh.String
	}
	return &u, nil
}

func (r *PostgresRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	username, email = Normalize(username), Normalize(email)
	if username == "" && email == "" {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE ($1 <> '' AND lower(username) = $1) OR ($2 <> '' AND lower(email) = $2)
		 ORDER BY (lower(username) = $1) DESC
		 LIMIT 1`

	return scanUser(r.db.QueryRowContext(ctx, query, username, email))
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, fullname, avatar, cover_image, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.FullName, user.Avatar, user.CoverImage, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id string, hash *string) error {
	query := `UPDATE users SET refresh_token_hash = $2, updated_at = now() WHERE id = $1`

	var value any
	if hash != nil {
		value = *hash
	}

	n, err := dbx.ExecAffected(ctx, r.db, query, id, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) CompareAndSwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	query :=
		`UPDATE users SET refresh_token_hash = $3, updated_at = now()
		 WHERE id = $1 AND refresh_token_hash = $2`

	n, err := dbx.ExecAffected(ctx, r.db, query, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
