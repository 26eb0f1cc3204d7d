package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftdraw/auth-bridge/internal/config"
	apperrors "github.com/giftdraw/auth-bridge/internal/errors"
	"github.com/giftdraw/auth-bridge/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		WebAppURL:         "https://app.example.com",
		BotUsername:       "example_bot",
		PairingTTLSeconds: 600,
	}
}

func TestPairingIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("issues fresh token with bot links", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		assert.Len(t, result.Token, 64)
		assert.False(t, result.Reused)
		assert.Equal(t, "https://t.me/example_bot?start=auth_"+result.Token, result.BotURL)
		assert.Equal(t, "tg://resolve?domain=example_bot&start=auth_"+result.Token, result.DeepLink)
	})

	t.Run("successive issues mint distinct tokens", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		a, err := svc.Issue(ctx, nil)
		require.NoError(t, err)
		b, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		assert.NotEqual(t, a.Token, b.Token)
	})

	t.Run("known identity reuses its live token", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		err = svc.Attach(ctx, result.Token, store.Identity{TelegramID: 100})
		require.NoError(t, err)

		id := int64(100)
		reissued, err := svc.Issue(ctx, &id)
		require.NoError(t, err)
		assert.True(t, reissued.Reused)
		assert.Equal(t, result.Token, reissued.Token)
	})

	t.Run("known identity without live token mints fresh", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		id := int64(999)
		result, err := svc.Issue(ctx, &id)
		require.NoError(t, err)
		assert.False(t, result.Reused)
	})
}

func TestPairingAttach(t *testing.T) {
	ctx := context.Background()

	t.Run("attach to unknown token fails", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		err := svc.Attach(ctx, "no-such-token", store.Identity{TelegramID: 100})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidPairingToken, apperrors.GetCode(err))
	})

	t.Run("duplicate attach of same identity succeeds", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		identity := store.Identity{TelegramID: 100}
		require.NoError(t, svc.Attach(ctx, result.Token, identity))
		assert.NoError(t, svc.Attach(ctx, result.Token, identity))
	})

	t.Run("different identity overwrites without error", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 100}))
		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 200}))

		rec, err := svc.Resolve(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(200), *rec.TelegramID)
	})

	t.Run("overwrite emits a conflict audit event", func(t *testing.T) {
		var buf bytes.Buffer
		orig := zlog.Logger
		zlog.Logger = zerolog.New(&buf)
		defer func() { zlog.Logger = orig }()

		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 100}))
		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 200}))

		assert.Contains(t, buf.String(), `"event_type":"pairing_conflict"`)
		assert.Contains(t, buf.String(), `"telegram_id":200`)
	})
}

func TestPairingResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves attached token", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 100}))

		rec, err := svc.Resolve(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(100), *rec.TelegramID)
	})

	t.Run("unattached token is rejected with distinct code", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		_, err = svc.Resolve(ctx, result.Token)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeTokenNotAttached, apperrors.GetCode(err))
	})

	t.Run("unknown and expired tokens fail identically", func(t *testing.T) {
		s := store.NewMemoryStore()
		now := time.Now()
		s.SetClock(func() time.Time { return now })
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		s.SetClock(func() time.Time { return now.Add(11 * time.Minute) })

		_, expiredErr := svc.Resolve(ctx, result.Token)
		require.Error(t, expiredErr)
		_, unknownErr := svc.Resolve(ctx, "never-existed")
		require.Error(t, unknownErr)

		expiredApp, _ := apperrors.AsAppError(expiredErr)
		unknownApp, _ := apperrors.AsAppError(unknownErr)
		assert.Equal(t, unknownApp.Code, expiredApp.Code)
		assert.Equal(t, unknownApp.Message, expiredApp.Message)
	})
}

func TestPairingFinish(t *testing.T) {
	ctx := context.Background()

	t.Run("token stays live after exchange by default", func(t *testing.T) {
		s := store.NewMemoryStore()
		svc := NewPairingService(s, testConfig())

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 100}))

		svc.Finish(ctx, result.Token)

		// A second device can repeat the exchange until TTL.
		_, err = svc.Resolve(ctx, result.Token)
		assert.NoError(t, err)
	})

	t.Run("single-use policy consumes the token", func(t *testing.T) {
		s := store.NewMemoryStore()
		cfg := testConfig()
		cfg.PairingSingleUse = true
		svc := NewPairingService(s, cfg)

		result, err := svc.Issue(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, svc.Attach(ctx, result.Token, store.Identity{TelegramID: 100}))

		svc.Finish(ctx, result.Token)

		_, err = svc.Resolve(ctx, result.Token)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidPairingToken, apperrors.GetCode(err))
	})
}

func TestMaskToken(t *testing.T) {
	t.Run("long token keeps only a prefix", func(t *testing.T) {
		assert.Equal(t, "abcdefghij...", MaskToken("abcdefghijklmnop"))
	})

	t.Run("short token is fully masked", func(t *testing.T) {
		assert.Equal(t, "****", MaskToken("short"))
	})
}
