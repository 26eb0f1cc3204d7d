package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/giftdraw/auth-bridge/internal/model"
)

// UserRepository persists per-identity session records. refresh_token carries a
// unique index so lookup-by-token is a key lookup and one live refresh token
// per identity is enforced by overwrite.
type UserRepository interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	FindByRefreshToken(ctx context.Context, refreshToken string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	UpdateLogin(ctx context.Context, params model.UpdateLoginParams) (*model.User, error)
	UpdateLastUsed(ctx context.Context, telegramID int64, usedAt time.Time) error
	RotateRefreshToken(ctx context.Context, telegramID int64, refreshToken string, expiresAt time.Time) error
	RevokeByRefreshToken(ctx context.Context, refreshToken string) (bool, error)
	UpdateAvatar(ctx context.Context, telegramID int64, avatarURL, avatarFileID string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) UserRepository
}

// userDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type userDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type userRepo struct {
	db userDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE telegram_id = $1
	`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByRefreshToken(ctx context.Context, refreshToken string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE refresh_token = $1
	`, refreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (
			telegram_id, username, first_name, last_name,
			refresh_token, refresh_expires_at, is_revoked,
			last_login_at, last_used_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, false, NOW(), NOW())
		RETURNING *
	`, params.TelegramID, params.Username, params.FirstName, params.LastName,
		params.RefreshToken, params.RefreshExpiresAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLogin replaces the refresh token, clears the revocation flag and
// refreshes the profile mirror. NULL profile inputs keep the last known value.
func (r *userRepo) UpdateLogin(ctx context.Context, params model.UpdateLoginParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET
			refresh_token = $2,
			refresh_expires_at = $3,
			is_revoked = false,
			username = COALESCE($4, username),
			first_name = COALESCE($5, first_name),
			last_name = COALESCE($6, last_name),
			last_login_at = NOW(),
			last_used_at = NOW(),
			updated_at = NOW()
		WHERE telegram_id = $1
		RETURNING *
	`, params.TelegramID, params.RefreshToken, params.RefreshExpiresAt,
		params.Username, params.FirstName, params.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateLastUsed(ctx context.Context, telegramID int64, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_used_at = $2, updated_at = $2 WHERE telegram_id = $1
	`, telegramID, usedAt)
	return err
}

func (r *userRepo) RotateRefreshToken(ctx context.Context, telegramID int64, refreshToken string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			refresh_token = $2,
			refresh_expires_at = $3,
			updated_at = NOW()
		WHERE telegram_id = $1
	`, telegramID, refreshToken, expiresAt)
	return err
}

func (r *userRepo) RevokeByRefreshToken(ctx context.Context, refreshToken string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_revoked = true, updated_at = NOW()
		WHERE refresh_token = $1
	`, refreshToken)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *userRepo) UpdateAvatar(ctx context.Context, telegramID int64, avatarURL, avatarFileID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET avatar_url = $2, avatar_file_id = $3, updated_at = NOW()
		WHERE telegram_id = $1
	`, telegramID, avatarURL, avatarFileID)
	return err
}
