package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftdraw/auth-bridge/internal/config"
	"github.com/giftdraw/auth-bridge/internal/service"
	"github.com/giftdraw/auth-bridge/internal/store"
	"github.com/giftdraw/auth-bridge/internal/telegram"
)

func newWebhookEnv(t *testing.T) (*WebhookHandler, *store.MemoryStore, *service.PairingService) {
	t.Helper()

	cfg := &config.Config{
		WebAppURL:         "https://app.example.com",
		BotUsername:       "example_bot",
		PairingTTLSeconds: 600,
	}
	pairingStore := store.NewMemoryStore()
	pairingService := service.NewPairingService(pairingStore, cfg)
	h := NewWebhookHandler(pairingService, telegram.NewClient(""), cfg)
	return h, pairingStore, pairingService
}

func postUpdate(t *testing.T, h *WebhookHandler, update telegram.Update) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(update))

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", &buf)
	w := httptest.NewRecorder()
	h.Handle(w, req)
	return w
}

func TestWebhookDeepLink(t *testing.T) {
	ctx := context.Background()

	t.Run("start auth message attaches identity", func(t *testing.T) {
		h, _, svc := newWebhookEnv(t)

		issued, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		w := postUpdate(t, h, telegram.Update{
			Message: &telegram.Message{
				From: &telegram.User{ID: 100, Username: "alice", FirstName: "Alice"},
				Chat: telegram.Chat{ID: 100},
				Text: "/start auth_" + issued.Token,
			},
		})
		require.Equal(t, http.StatusOK, w.Code)

		rec, err := svc.Resolve(ctx, issued.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(100), *rec.TelegramID)
		assert.Equal(t, "alice", *rec.Username)
	})

	t.Run("invalid token still answers 200", func(t *testing.T) {
		h, _, _ := newWebhookEnv(t)

		w := postUpdate(t, h, telegram.Update{
			Message: &telegram.Message{
				From: &telegram.User{ID: 100},
				Chat: telegram.Chat{ID: 100},
				Text: "/start auth_not-a-real-token",
			},
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("messages from bots are ignored", func(t *testing.T) {
		h, _, svc := newWebhookEnv(t)

		issued, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		w := postUpdate(t, h, telegram.Update{
			Message: &telegram.Message{
				From: &telegram.User{ID: 100, IsBot: true},
				Chat: telegram.Chat{ID: 100},
				Text: "/start auth_" + issued.Token,
			},
		})
		require.Equal(t, http.StatusOK, w.Code)

		_, err = svc.Resolve(ctx, issued.Token)
		assert.Error(t, err, "bot message must not attach")
	})

	t.Run("plain start is answered without attaching", func(t *testing.T) {
		h, _, svc := newWebhookEnv(t)

		issued, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		w := postUpdate(t, h, telegram.Update{
			Message: &telegram.Message{
				From: &telegram.User{ID: 100},
				Chat: telegram.Chat{ID: 100},
				Text: "/start",
			},
		})
		require.Equal(t, http.StatusOK, w.Code)

		_, err = svc.Resolve(ctx, issued.Token)
		assert.Error(t, err)
	})
}

func TestWebhookCallbackQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("confirm_auth binds newest pending token", func(t *testing.T) {
		h, _, svc := newWebhookEnv(t)

		issued, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		w := postUpdate(t, h, telegram.Update{
			CallbackQuery: &telegram.CallbackQuery{
				ID:   "cb1",
				From: telegram.User{ID: 100, Username: "alice"},
				Data: "confirm_auth",
			},
		})
		require.Equal(t, http.StatusOK, w.Code)

		rec, err := svc.Resolve(ctx, issued.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(100), *rec.TelegramID)
	})

	t.Run("confirm_auth with nothing pending answers 200", func(t *testing.T) {
		h, _, _ := newWebhookEnv(t)

		w := postUpdate(t, h, telegram.Update{
			CallbackQuery: &telegram.CallbackQuery{
				ID:   "cb1",
				From: telegram.User{ID: 100},
				Data: "confirm_auth",
			},
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown callback data is ignored", func(t *testing.T) {
		h, _, svc := newWebhookEnv(t)

		issued, err := svc.Issue(ctx, nil)
		require.NoError(t, err)

		w := postUpdate(t, h, telegram.Update{
			CallbackQuery: &telegram.CallbackQuery{
				ID:   "cb1",
				From: telegram.User{ID: 100},
				Data: "something_else",
			},
		})
		require.Equal(t, http.StatusOK, w.Code)

		_, err = svc.Resolve(ctx, issued.Token)
		assert.Error(t, err)
	})
}

func TestWebhookMalformedBody(t *testing.T) {
	t.Run("unparseable update answers 200", func(t *testing.T) {
		h, _, _ := newWebhookEnv(t)

		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewBufferString("{not json"))
		w := httptest.NewRecorder()
		h.Handle(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("empty update answers 200", func(t *testing.T) {
		h, _, _ := newWebhookEnv(t)

		w := postUpdate(t, h, telegram.Update{UpdateID: 1})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
