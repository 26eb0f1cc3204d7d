package store

import (
	"context"
	"time"

	"github.com/giftdraw/auth-bridge/internal/model"
)

// Identity is the Telegram identity a bot interaction binds to a pairing token.
type Identity struct {
	TelegramID int64
	Username   *string
	FirstName  *string
}

// AttachOutcome describes what an Attach call did to the token record.
type AttachOutcome int

const (
	// AttachNotFound means the token is absent or expired.
	AttachNotFound AttachOutcome = iota
	// AttachOK means the identity was bound to a previously unattached token.
	AttachOK
	// AttachIdempotent means the token was already bound to the same identity;
	// no write happened. Duplicate bot events land here.
	AttachIdempotent
	// AttachReplaced means the token was bound to a different identity and has
	// been overwritten. Last pairing wins; callers log this as a conflict.
	AttachReplaced
)

// PairingStore persists pairing tokens with a TTL. Implementations must make
// per-token writes atomic; reads lazily evict expired records, so correctness
// never depends on Cleanup running.
type PairingStore interface {
	// Create persists a freshly generated token with no owner.
	Create(ctx context.Context, token string, ttl time.Duration) (*model.PairingToken, error)

	// Attach binds an identity to the token. See AttachOutcome for semantics.
	Attach(ctx context.Context, token string, identity Identity) (AttachOutcome, error)

	// Get returns the record, or nil if the token is missing or expired.
	Get(ctx context.Context, token string) (*model.PairingToken, error)

	// Consume deletes the token. Used by single-use flows; returns false if
	// the token was already gone.
	Consume(ctx context.Context, token string) (bool, error)

	// FindUnattached returns the most recently created live token with no
	// owner, or "" if none. This is a heuristic binding for bot interactions
	// that carry no token of their own; under concurrent pairing attempts it
	// can pick the wrong in-flight request.
	FindUnattached(ctx context.Context) (string, error)

	// FindByTelegramID returns the live token most recently attached to the
	// given identity, or "".
	FindByTelegramID(ctx context.Context, telegramID int64) (string, error)

	// Cleanup removes expired bookkeeping and returns how many entries it
	// pruned. Optional housekeeping only.
	Cleanup(ctx context.Context) (int64, error)
}
