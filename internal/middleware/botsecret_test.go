package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBotSecretMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("passes through when no secret configured", func(t *testing.T) {
		mw := NewBotSecretMiddleware("")

		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil)
		w := httptest.NewRecorder()
		mw.Handler(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("accepts matching secret header", func(t *testing.T) {
		mw := NewBotSecretMiddleware("webhook-secret")

		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil)
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "webhook-secret")
		w := httptest.NewRecorder()
		mw.Handler(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		mw := NewBotSecretMiddleware("webhook-secret")

		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil)
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
		w := httptest.NewRecorder()
		mw.Handler(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		mw := NewBotSecretMiddleware("webhook-secret")

		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil)
		w := httptest.NewRecorder()
		mw.Handler(okHandler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccessTokenMiddlewareRejections(t *testing.T) {
	t.Run("missing authorization header is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		assert.Empty(t, extractBearer(req))
	})

	t.Run("non-bearer scheme is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Empty(t, extractBearer(req))
	})

	t.Run("bearer token is extracted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		assert.Equal(t, "some-token", extractBearer(req))
	})
}
