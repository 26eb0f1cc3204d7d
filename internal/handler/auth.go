package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/giftdraw/auth-bridge/internal/audit"
	"github.com/giftdraw/auth-bridge/internal/config"
	apperrors "github.com/giftdraw/auth-bridge/internal/errors"
	"github.com/giftdraw/auth-bridge/internal/middleware"
	"github.com/giftdraw/auth-bridge/internal/service"
	"github.com/giftdraw/auth-bridge/internal/session"
	"github.com/giftdraw/auth-bridge/internal/store"
)

type Middleware func(http.Handler) http.Handler

type AuthHandler struct {
	pairingService *service.PairingService
	authService    *service.AuthService
	avatarService  *service.AvatarService
	cfg            *config.Config

	issueLimiter   Middleware
	refreshLimiter Middleware
	botGuard       Middleware
	accessGuard    Middleware
}

func NewAuthHandler(
	pairingService *service.PairingService,
	authService *service.AuthService,
	avatarService *service.AvatarService,
	cfg *config.Config,
	issueLimiter, refreshLimiter, botGuard, accessGuard Middleware,
) *AuthHandler {
	return &AuthHandler{
		pairingService: pairingService,
		authService:    authService,
		avatarService:  avatarService,
		cfg:            cfg,
		issueLimiter:   issueLimiter,
		refreshLimiter: refreshLimiter,
		botGuard:       botGuard,
		accessGuard:    accessGuard,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.issueLimiter).Post("/pairing", h.IssuePairing)
	r.With(h.botGuard).Post("/verify", h.VerifyToken)
	r.With(h.botGuard).Post("/login", h.Login)
	r.Get("/callback", h.Callback)
	r.Get("/session", h.CheckSession)
	r.With(h.refreshLimiter).Post("/session/refresh", h.RefreshToken)
	r.Post("/session/logout", h.Logout)
	r.With(h.accessGuard).Post("/avatar/refresh", h.RefreshAvatar)

	return r
}

// POST /api/auth/pairing
func (h *AuthHandler) IssuePairing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// An already-authenticated caller reuses its pending token so a second
	// device can join the same pairing.
	var knownIdentity *int64
	if payload := session.FromRequest(r); payload != nil && payload.Authenticated {
		if user, err := h.authService.GetByRefreshToken(ctx, payload.RefreshToken); err == nil && user != nil {
			knownIdentity = &user.TelegramID
		}
	}

	result, err := h.pairingService.Issue(ctx, knownIdentity)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue pairing token")
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventPairingIssued,
		Details: map[string]interface{}{"reused": result.Reused},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"token":    result.Token,
		"botUrl":   result.BotURL,
		"deepLink": result.DeepLink,
		"reused":   result.Reused,
	})
}

type verifyRequest struct {
	Token      string `json:"token"`
	TelegramID int64  `json:"telegramId"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
}

// POST /api/auth/verify, called by the bot integration layer once a user has
// opened the deep link.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Token == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}
	if req.TelegramID == 0 {
		writeError(w, apperrors.MissingRequired("telegramId"))
		return
	}

	identity := store.Identity{
		TelegramID: req.TelegramID,
		Username:   optional(req.Username),
		FirstName:  optional(req.FirstName),
	}

	if err := h.pairingService.Attach(r.Context(), req.Token, identity); err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:       audit.EventPairingRejected,
			TelegramID: req.TelegramID,
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventPairingAttached,
		TelegramID: req.TelegramID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"callbackUrl": h.cfg.CallbackURL(req.Token),
	})
}

type loginRequest struct {
	TelegramID int64  `json:"telegramId"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

// POST /api/auth/login is the direct login path for the bot flow; returns the
// token pair straight to the caller instead of going through a pairing token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.TelegramID == 0 {
		writeError(w, apperrors.MissingRequired("telegramId"))
		return
	}

	pair, err := h.authService.LoginOrCreate(r.Context(), req.TelegramID,
		optional(req.Username), optional(req.FirstName), optional(req.LastName))
	if err != nil {
		log.Error().Err(err).Int64("telegramId", req.TelegramID).Msg("login failed")
		writeError(w, err)
		return
	}

	h.avatarService.RefreshAsync(req.TelegramID)

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventLoginSuccess,
		TelegramID: req.TelegramID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// GET /api/auth/callback?token=... is the exchange: trade an attached pairing
// token for a session, set the cookie, and send the user back to the web app.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	tokenParam := r.URL.Query().Get("token")
	if tokenParam == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}

	ctx := r.Context()

	rec, err := h.pairingService.Resolve(ctx, tokenParam)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventPairingRejected})
		writeError(w, err)
		return
	}

	pair, err := h.authService.LoginOrCreate(ctx, *rec.TelegramID, rec.Username, rec.FirstName, nil)
	if err != nil {
		log.Error().Err(err).Int64("telegramId", *rec.TelegramID).Msg("exchange login failed")
		writeError(w, err)
		return
	}

	h.avatarService.RefreshAsync(*rec.TelegramID)

	session.SetCookie(w, session.Payload{
		TelegramID:    *rec.TelegramID,
		Username:      rec.Username,
		FirstName:     rec.FirstName,
		RefreshToken:  pair.RefreshToken,
		Authenticated: true,
	})

	h.pairingService.Finish(ctx, tokenParam)

	audit.LogFromRequest(r, audit.Event{
		Type:       audit.EventPairingExchanged,
		TelegramID: *rec.TelegramID,
	})

	if isInAppBrowser(r.UserAgent()) {
		writeBridgePage(w, h.cfg.WebAppURL)
		return
	}

	http.Redirect(w, r, h.cfg.WebAppURL, http.StatusFound)
}

// GET /api/auth/session. The cookie is only a hint; trust is re-derived from
// the stored refresh token on every call.
func (h *AuthHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	payload := session.FromRequest(r)
	if payload == nil || !payload.Authenticated || payload.RefreshToken == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	user, err := h.authService.GetByRefreshToken(r.Context(), payload.RefreshToken)
	if err != nil {
		log.Error().Err(err).Msg("session check failed")
		writeError(w, err)
		return
	}
	if user == nil {
		session.ClearCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        user.TelegramID,
		"username":      user.Username,
		"firstName":     user.FirstName,
		"avatarUrl":     user.AvatarURL,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// POST /api/auth/session/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.RefreshToken == "" {
		writeError(w, apperrors.MissingRequired("refreshToken"))
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventRefreshRejected})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventTokenRefresh})

	response := map[string]any{
		"success":     true,
		"accessToken": result.AccessToken,
	}
	if result.RefreshToken != nil {
		response["refreshToken"] = *result.RefreshToken
	}

	writeJSON(w, http.StatusOK, response)
}

// POST /api/auth/session/logout. The refresh token comes from the cookie or the
// body; the cookie is cleared either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if payload := session.FromRequest(r); payload != nil {
		refreshToken = payload.RefreshToken
	}
	if refreshToken == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}

	if refreshToken != "" {
		revoked, err := h.authService.Revoke(r.Context(), refreshToken)
		if err != nil {
			log.Error().Err(err).Msg("logout revoke failed")
			writeError(w, err)
			return
		}
		if !revoked {
			log.Warn().Msg("logout with unknown refresh token")
		}
	}

	session.ClearCookie(w)

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /api/auth/avatar/refresh. Bearer access token required; failure here
// is never fatal to anything else.
func (h *AuthHandler) RefreshAvatar(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, apperrors.Unauthorized("Missing access token"))
		return
	}

	telegramID, err := claims.TelegramID()
	if err != nil {
		writeError(w, apperrors.Unauthorized("Invalid access token subject"))
		return
	}

	avatarURL, err := h.avatarService.Refresh(r.Context(), telegramID, true)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"avatarUrl": avatarURL,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
