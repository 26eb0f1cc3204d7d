package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/giftdraw/auth-bridge/internal/errors"
	"github.com/giftdraw/auth-bridge/internal/repository"
	"github.com/giftdraw/auth-bridge/internal/telegram"
)

const avatarFetchTimeout = 30 * time.Second

// AvatarService mirrors Telegram profile photos into local storage so the
// served URL outlives Telegram's own short-lived file URLs. Everything here is
// best-effort: a failed refresh never blocks login.
type AvatarService struct {
	userRepo repository.UserRepository
	tg       *telegram.Client
	dir      string
	salt     string
	baseURL  string
}

func NewAvatarService(userRepo repository.UserRepository, tg *telegram.Client, dir, salt, baseURL string) *AvatarService {
	return &AvatarService{
		userRepo: userRepo,
		tg:       tg,
		dir:      dir,
		salt:     salt,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Refresh fetches the user's current profile photo and persists it under a
// salted, stable file name. When the photo is unchanged since the last fetch
// the stored URL is returned without downloading, unless force is set.
func (s *AvatarService) Refresh(ctx context.Context, telegramID int64, force bool) (string, error) {
	if !s.tg.Enabled() {
		return "", apperrors.External("telegram", telegram.ErrNotConfigured)
	}

	fileID, err := s.tg.ProfilePhotoFileID(ctx, telegramID)
	if err != nil {
		return "", apperrors.External("telegram", err)
	}
	if fileID == "" {
		return "", apperrors.NotFound("Avatar")
	}

	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return "", apperrors.Database(err)
	}

	if user != nil && !force &&
		user.AvatarFileID != nil && *user.AvatarFileID == fileID &&
		user.AvatarURL != nil && *user.AvatarURL != "" {
		log.Debug().Int64("telegramId", telegramID).Msg("avatar unchanged, keeping stored URL")
		return *user.AvatarURL, nil
	}

	data, filePath, err := s.tg.DownloadFile(ctx, fileID)
	if err != nil {
		return "", apperrors.External("telegram", err)
	}

	fileName := s.fileName(telegramID, filePath)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", apperrors.Internal("failed to create avatar directory").WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, fileName), data, 0o644); err != nil {
		return "", apperrors.Internal("failed to write avatar file").WithCause(err)
	}

	avatarURL := fmt.Sprintf("%s/avatars/%s", s.baseURL, fileName)
	if err := s.userRepo.UpdateAvatar(ctx, telegramID, avatarURL, fileID); err != nil {
		return "", apperrors.Database(err)
	}

	log.Info().
		Int64("telegramId", telegramID).
		Str("file", fileName).
		Msg("avatar refreshed")

	return avatarURL, nil
}

// RefreshAsync runs Refresh detached from the request that triggered it.
// Used on the login path, where avatar failures must never surface.
func (s *AvatarService) RefreshAsync(telegramID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), avatarFetchTimeout)
		defer cancel()
		if _, err := s.Refresh(ctx, telegramID, false); err != nil {
			log.Warn().Err(err).Int64("telegramId", telegramID).Msg("background avatar refresh failed")
		}
	}()
}

// fileName hashes the identity with a salt so avatar URLs are stable but not
// enumerable from Telegram ids.
func (s *AvatarService) fileName(telegramID int64, filePath string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d_%s", telegramID, s.salt)))
	ext := strings.TrimPrefix(filepath.Ext(filePath), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s.%s", hex.EncodeToString(sum[:])[:32], ext)
}
