package model

import "time"

// User is the per-Telegram-identity session record. The row is created on first
// login and updated in place afterwards; it is never physically deleted, logout
// only sets is_revoked.
type User struct {
	TelegramID       int64      `db:"telegram_id" json:"telegramId"`
	Username         *string    `db:"username" json:"username,omitempty"`
	FirstName        *string    `db:"first_name" json:"firstName,omitempty"`
	LastName         *string    `db:"last_name" json:"lastName,omitempty"`
	AvatarURL        *string    `db:"avatar_url" json:"avatarUrl,omitempty"`
	AvatarFileID     *string    `db:"avatar_file_id" json:"-"`
	RefreshToken     string     `db:"refresh_token" json:"-"`
	RefreshExpiresAt time.Time  `db:"refresh_expires_at" json:"-"`
	IsRevoked        bool       `db:"is_revoked" json:"-"`
	LastUsedAt       *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	LastLoginAt      *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// RefreshValid reports whether the stored refresh token may still mint access
// tokens: not revoked and not past its absolute expiry.
func (u *User) RefreshValid(now time.Time) bool {
	return !u.IsRevoked && now.Before(u.RefreshExpiresAt)
}

type CreateUserParams struct {
	TelegramID       int64
	Username         *string
	FirstName        *string
	LastName         *string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type UpdateLoginParams struct {
	TelegramID       int64
	Username         *string
	FirstName        *string
	LastName         *string
	RefreshToken     string
	RefreshExpiresAt time.Time
}
