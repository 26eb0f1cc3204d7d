package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/giftdraw/auth-bridge/internal/audit"
	"github.com/giftdraw/auth-bridge/internal/config"
	"github.com/giftdraw/auth-bridge/internal/service"
	"github.com/giftdraw/auth-bridge/internal/store"
	"github.com/giftdraw/auth-bridge/internal/telegram"
)

const startAuthPrefix = "/start auth_"

// WebhookHandler processes Telegram bot updates. It always answers 200 so
// Telegram stops retrying; failures are logged, never propagated.
type WebhookHandler struct {
	pairingService *service.PairingService
	tg             *telegram.Client
	cfg            *config.Config
}

func NewWebhookHandler(pairingService *service.PairingService, tg *telegram.Client, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{
		pairingService: pairingService,
		tg:             tg,
		cfg:            cfg,
	}
}

// Handle is POST /telegram/webhook.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("unparseable webhook update")
		audit.LogFromRequest(r, audit.Event{Type: audit.EventWebhookRejected})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	switch {
	case update.Message != nil:
		h.handleMessage(r, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(r, update.CallbackQuery)
	default:
		log.Debug().Int64("updateId", update.UpdateID).Msg("ignoring unhandled update type")
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *WebhookHandler) handleMessage(r *http.Request, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, startAuthPrefix):
		token := strings.TrimSpace(strings.TrimPrefix(text, startAuthPrefix))
		h.attachAndConfirm(r, msg.Chat.ID, *msg.From, token)

	case text == "/start":
		h.sendGreeting(r.Context(), msg.Chat.ID)

	default:
		log.Debug().
			Int64("telegramId", msg.From.ID).
			Msg("ignoring non-command message")
	}
}

// handleCallback serves inline button presses that carry no pairing token of
// their own. The newest pending token is guessed from the store; with
// concurrent pairings this can bind the wrong request, which is why the deep
// link path is preferred.
func (h *WebhookHandler) handleCallback(r *http.Request, cb *telegram.CallbackQuery) {
	ctx := r.Context()

	if cb.Data != "confirm_auth" {
		h.answerCallback(ctx, cb.ID, "")
		return
	}

	token, err := h.pairingService.FindUnattached(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to look up pending pairing token")
		h.answerCallback(ctx, cb.ID, "Something went wrong, please try again")
		return
	}
	if token == "" {
		h.answerCallback(ctx, cb.ID, "No pending login found, request a new link")
		return
	}

	if err := h.pairingService.Attach(ctx, token, identityOf(cb.From)); err != nil {
		log.Warn().Err(err).Int64("telegramId", cb.From.ID).Msg("callback attach failed")
		h.answerCallback(ctx, cb.ID, "Login link expired, request a new one")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventPairingAttached,
		TelegramID: cb.From.ID,
		Details:    map[string]interface{}{"via": "callback_query"},
	})

	h.answerCallback(ctx, cb.ID, "Confirmed! Return to your browser")

	if cb.Message != nil {
		h.sendConfirmation(ctx, cb.Message.Chat.ID, token)
	}
}

func (h *WebhookHandler) attachAndConfirm(r *http.Request, chatID int64, from telegram.User, token string) {
	ctx := r.Context()

	if err := h.pairingService.Attach(ctx, token, identityOf(from)); err != nil {
		log.Warn().Err(err).Int64("telegramId", from.ID).Msg("deep link attach failed")
		audit.LogFromRequest(r, audit.Event{
			Type:       audit.EventPairingRejected,
			TelegramID: from.ID,
		})
		h.sendMessage(ctx, chatID,
			"This login link is invalid or has expired. Please request a new one from the website.", nil)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventPairingAttached,
		TelegramID: from.ID,
		Details:    map[string]interface{}{"via": "deep_link"},
	})

	h.sendConfirmation(ctx, chatID, token)
}

func (h *WebhookHandler) sendConfirmation(ctx context.Context, chatID int64, token string) {
	buttons := [][]telegram.InlineButton{{
		{Text: "Continue to website", URL: h.cfg.CallbackURL(token)},
	}}
	h.sendMessage(ctx, chatID,
		"You're verified! Tap the button below to finish signing in.", buttons)
}

func (h *WebhookHandler) sendGreeting(ctx context.Context, chatID int64) {
	h.sendMessage(ctx, chatID, fmt.Sprintf(
		"Welcome! To sign in, start from %s and tap the login button there.",
		h.cfg.WebAppURL), nil)
}

func (h *WebhookHandler) sendMessage(ctx context.Context, chatID int64, text string, buttons [][]telegram.InlineButton) {
	if !h.tg.Enabled() {
		return
	}
	if err := h.tg.SendMessage(ctx, chatID, text, buttons); err != nil {
		log.Error().Err(err).Int64("chatId", chatID).Msg("failed to send bot message")
	}
}

func (h *WebhookHandler) answerCallback(ctx context.Context, callbackID, text string) {
	if !h.tg.Enabled() {
		return
	}
	if err := h.tg.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		log.Error().Err(err).Msg("failed to answer callback query")
	}
}

func identityOf(u telegram.User) store.Identity {
	return store.Identity{
		TelegramID: u.ID,
		Username:   optional(u.Username),
		FirstName:  optional(u.FirstName),
	}
}
