package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/giftdraw/auth-bridge/internal/errors"
	"github.com/giftdraw/auth-bridge/internal/model"
	"github.com/giftdraw/auth-bridge/internal/repository"
	"github.com/giftdraw/auth-bridge/internal/token"
)

// TokenPair is the result of a completed login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshResult carries a fresh access token and, when rotation is enabled,
// the replacement refresh token.
type RefreshResult struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken *string `json:"refreshToken,omitempty"`
}

// AuthService owns the session record lifecycle: login issues a refresh token
// and derives access tokens from it; logout revokes; every privileged read
// revalidates against the stored record.
type AuthService struct {
	userRepo   repository.UserRepository
	signer     *token.Signer
	refreshTTL time.Duration
	rotate     bool
}

func NewAuthService(userRepo repository.UserRepository, signer *token.Signer, refreshTTL time.Duration, rotate bool) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		signer:     signer,
		refreshTTL: refreshTTL,
		rotate:     rotate,
	}
}

// LoginOrCreate creates the session record on first login and replaces the
// refresh token on every subsequent one; the old token is superseded by
// overwrite. Empty profile inputs never erase previously stored values. Tokens
// are only returned once the record is durably stored.
func (s *AuthService) LoginOrCreate(ctx context.Context, telegramID int64, username, firstName, lastName *string) (*TokenPair, error) {
	refreshToken := token.Generate()
	refreshExpiresAt := time.Now().Add(s.refreshTTL)

	existing, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	var user *model.User
	if existing != nil {
		user, err = s.userRepo.UpdateLogin(ctx, model.UpdateLoginParams{
			TelegramID:       telegramID,
			Username:         nonEmpty(username),
			FirstName:        nonEmpty(firstName),
			LastName:         nonEmpty(lastName),
			RefreshToken:     refreshToken,
			RefreshExpiresAt: refreshExpiresAt,
		})
	} else {
		user, err = s.userRepo.Create(ctx, model.CreateUserParams{
			TelegramID:       telegramID,
			Username:         nonEmpty(username),
			FirstName:        nonEmpty(firstName),
			LastName:         nonEmpty(lastName),
			RefreshToken:     refreshToken,
			RefreshExpiresAt: refreshExpiresAt,
		})
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.Internal("login produced no session record")
	}

	accessToken, err := s.signAccess(user)
	if err != nil {
		return nil, apperrors.Internal("failed to sign access token").WithCause(err)
	}

	log.Info().
		Int64("telegramId", telegramID).
		Bool("created", existing == nil).
		Time("refreshExpiresAt", refreshExpiresAt).
		Msg("user logged in")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh derives a new access token from a live refresh token. Missing,
// expired, and revoked tokens are rejected identically; the distinction is
// only logged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	user, err := s.userRepo.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		log.Warn().Str("token", MaskToken(refreshToken)).Msg("refresh token not found")
		return nil, apperrors.InvalidRefreshToken()
	}
	if user.IsRevoked {
		log.Warn().Int64("telegramId", user.TelegramID).Msg("refresh attempt with revoked token")
		return nil, apperrors.InvalidRefreshToken()
	}
	if !time.Now().Before(user.RefreshExpiresAt) {
		log.Warn().Int64("telegramId", user.TelegramID).Msg("refresh attempt with expired token")
		return nil, apperrors.InvalidRefreshToken()
	}

	if err := s.userRepo.UpdateLastUsed(ctx, user.TelegramID, time.Now()); err != nil {
		// Observability only, the refresh still succeeds.
		log.Error().Err(err).Int64("telegramId", user.TelegramID).Msg("failed to update last_used_at")
	}

	accessToken, err := s.signAccess(user)
	if err != nil {
		return nil, apperrors.Internal("failed to sign access token").WithCause(err)
	}

	result := &RefreshResult{AccessToken: accessToken}

	if s.rotate {
		newRefresh := token.Generate()
		newExpiry := time.Now().Add(s.refreshTTL)
		if err := s.userRepo.RotateRefreshToken(ctx, user.TelegramID, newRefresh, newExpiry); err != nil {
			return nil, apperrors.Database(err)
		}
		result.RefreshToken = &newRefresh
		log.Info().Int64("telegramId", user.TelegramID).Msg("refresh token rotated")
	}

	return result, nil
}

// Revoke marks the session owning the refresh token as logged out. The token
// stays unusable until a fresh login issues a replacement.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	revoked, err := s.userRepo.RevokeByRefreshToken(ctx, refreshToken)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if revoked {
		log.Info().Str("token", MaskToken(refreshToken)).Msg("refresh token revoked")
	}
	return revoked, nil
}

// GetByRefreshToken returns the session record behind a live refresh token;
// revoked or expired sessions read as absent.
func (s *AuthService) GetByRefreshToken(ctx context.Context, refreshToken string) (*model.User, error) {
	user, err := s.userRepo.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !user.RefreshValid(time.Now()) {
		return nil, nil
	}
	return user, nil
}

// GetByTelegramID returns the live session for an identity, applying the same
// revoked/expired filtering as GetByRefreshToken.
func (s *AuthService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !user.RefreshValid(time.Now()) {
		return nil, nil
	}
	return user, nil
}

func (s *AuthService) signAccess(user *model.User) (string, error) {
	return s.signer.SignAccessToken(
		user.TelegramID,
		strVal(user.Username),
		strVal(user.FirstName),
		time.Now(),
	)
}

// nonEmpty maps empty strings to nil so the repository's COALESCE keeps the
// last known value.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
