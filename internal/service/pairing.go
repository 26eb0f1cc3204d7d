package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/giftdraw/auth-bridge/internal/audit"
	"github.com/giftdraw/auth-bridge/internal/config"
	apperrors "github.com/giftdraw/auth-bridge/internal/errors"
	"github.com/giftdraw/auth-bridge/internal/model"
	"github.com/giftdraw/auth-bridge/internal/store"
	"github.com/giftdraw/auth-bridge/internal/token"
)

// IssueResult is what the browser needs to hand the pairing token to the bot.
type IssueResult struct {
	Token    string `json:"token"`
	BotURL   string `json:"botUrl"`
	DeepLink string `json:"deepLink"`
	Reused   bool   `json:"reused,omitempty"`
}

// PairingService drives the pairing token lifecycle: issued anonymous on the
// web, attached to a Telegram identity by the bot, exchanged for session
// tokens by the browser.
type PairingService struct {
	store store.PairingStore
	cfg   *config.Config
}

func NewPairingService(store store.PairingStore, cfg *config.Config) *PairingService {
	return &PairingService{store: store, cfg: cfg}
}

// Issue creates a fresh pairing token. When the caller already has an
// authenticated identity, its newest live token is reused instead of minting,
// so multiple devices can complete the same pairing.
func (s *PairingService) Issue(ctx context.Context, knownIdentity *int64) (*IssueResult, error) {
	if knownIdentity != nil {
		existing, err := s.store.FindByTelegramID(ctx, *knownIdentity)
		if err != nil {
			return nil, apperrors.Store(err)
		}
		if existing != "" {
			log.Info().Int64("telegramId", *knownIdentity).Msg("reusing active pairing token")
			return s.result(existing, true), nil
		}
	}

	t := token.Generate()
	rec, err := s.store.Create(ctx, t, s.cfg.PairingTTL())
	if err != nil {
		return nil, apperrors.Store(err)
	}

	log.Info().
		Str("token", MaskToken(t)).
		Time("expiresAt", rec.ExpiresAt).
		Msg("pairing token issued")

	return s.result(t, false), nil
}

// Attach binds a Telegram identity to the token. Duplicate bot events for the
// same identity are accepted silently; a different identity overwrites the
// previous one (last pairing wins) and is logged as a conflict.
func (s *PairingService) Attach(ctx context.Context, t string, identity store.Identity) error {
	outcome, err := s.store.Attach(ctx, t, identity)
	if err != nil {
		return apperrors.Store(err)
	}

	switch outcome {
	case store.AttachNotFound:
		log.Warn().Str("token", MaskToken(t)).Msg("attach to invalid or expired pairing token")
		return apperrors.InvalidPairingToken()
	case store.AttachIdempotent:
		log.Info().
			Str("token", MaskToken(t)).
			Int64("telegramId", identity.TelegramID).
			Msg("pairing token already attached to same identity")
	case store.AttachReplaced:
		log.Warn().
			Str("token", MaskToken(t)).
			Int64("telegramId", identity.TelegramID).
			Msg("pairing token re-attached to different identity, last pairing wins")
		audit.Log(ctx, audit.Event{
			Type:       audit.EventPairingConflict,
			TelegramID: identity.TelegramID,
			Details:    map[string]interface{}{"token": MaskToken(t)},
		})
	default:
		log.Info().
			Str("token", MaskToken(t)).
			Int64("telegramId", identity.TelegramID).
			Msg("identity attached to pairing token")
	}

	return nil
}

// Resolve returns the attached record for an exchange. Missing, expired and
// unattached tokens all fail; the first two are indistinguishable to callers.
func (s *PairingService) Resolve(ctx context.Context, t string) (*model.PairingToken, error) {
	rec, err := s.store.Get(ctx, t)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if rec == nil {
		return nil, apperrors.InvalidPairingToken()
	}
	if !rec.Attached() {
		return nil, apperrors.TokenNotAttached()
	}
	return rec, nil
}

// Finish removes the token after a completed exchange when the single-use
// policy is enabled. With the default reusable policy the token stays live
// until TTL so other devices can repeat the exchange.
func (s *PairingService) Finish(ctx context.Context, t string) {
	if !s.cfg.PairingSingleUse {
		return
	}
	if _, err := s.store.Consume(ctx, t); err != nil {
		log.Error().Err(err).Str("token", MaskToken(t)).Msg("failed to consume pairing token")
	}
}

// FindUnattached guesses the most recent pending pairing request. Used by bot
// interactions that carry no token of their own; see store.PairingStore for
// the caveat on concurrent pairings.
func (s *PairingService) FindUnattached(ctx context.Context) (string, error) {
	t, err := s.store.FindUnattached(ctx)
	if err != nil {
		return "", apperrors.Store(err)
	}
	return t, nil
}

func (s *PairingService) result(t string, reused bool) *IssueResult {
	return &IssueResult{
		Token:    t,
		BotURL:   s.cfg.BotURL(t),
		DeepLink: s.cfg.DeepLink(t),
		Reused:   reused,
	}
}

// MaskToken truncates a token for logging.
func MaskToken(t string) string {
	if len(t) <= 10 {
		return "****"
	}
	return fmt.Sprintf("%s...", t[:10])
}
