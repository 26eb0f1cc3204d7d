package model

import "time"

// PairingToken links an anonymous web session to a Telegram identity. It is
// created without an owner; a bot interaction attaches one later.
type PairingToken struct {
	Token      string    `json:"token"`
	TelegramID *int64    `json:"telegramId,omitempty"`
	Username   *string   `json:"username,omitempty"`
	FirstName  *string   `json:"firstName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Attached reports whether a Telegram identity has been bound to the token.
func (t *PairingToken) Attached() bool {
	return t.TelegramID != nil
}

// Expired reports whether the token is past its TTL at the given instant.
func (t *PairingToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
